// Package embed turns text and images into fixed-dimension vectors.
//
// Two embedding spaces exist and are kept apart by type: TextVector (384
// dimensions, produced by TextProvider) and ImageVector (512 dimensions,
// produced by ImageProvider for both images and text queries). A vector
// from one space can never be compared with one from the other.
package embed

import (
	"encoding/binary"
	"math"
)

const (
	// TextDimensions is the size of the text embedding space.
	TextDimensions = 384
	// ImageDimensions is the size of the cross-modal image/text space.
	ImageDimensions = 512

	// similarityEpsilon is the smallest norm treated as non-zero.
	similarityEpsilon = 1e-8
)

// TextVector is an embedding in the 384-d text space.
type TextVector [TextDimensions]float32

// ImageVector is an embedding in the 512-d cross-modal space.
type ImageVector [ImageDimensions]float32

// CosineSimilarity returns dot(a,b)/(|a||b|). It returns 0 when either
// slice is empty, the lengths differ, or either norm is below epsilon.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA < similarityEpsilon || normB < similarityEpsilon {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// TextSimilarity compares two text vectors; nil on either side yields 0.
func TextSimilarity(a, b *TextVector) float32 {
	if a == nil || b == nil {
		return 0
	}
	return CosineSimilarity(a[:], b[:])
}

// ImageSimilarity compares two cross-modal vectors; nil on either side yields 0.
func ImageSimilarity(a, b *ImageVector) float32 {
	if a == nil || b == nil {
		return 0
	}
	return CosineSimilarity(a[:], b[:])
}

// normalizeInPlace scales v to unit length. Zero vectors are left alone.
func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum < similarityEpsilon {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// EncodeVector serializes v as little-endian float32s, the on-disk blob
// layout used by the store.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// DecodeInto fills dst from a blob written by EncodeVector. It reports
// false, leaving dst untouched, unless the blob is exactly len(dst)*4 bytes.
func DecodeInto(dst []float32, blob []byte) bool {
	if len(blob) != len(dst)*4 {
		return false
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return true
}

// DecodeTextVector decodes a text blob, or returns nil for any other length.
func DecodeTextVector(blob []byte) *TextVector {
	var v TextVector
	if !DecodeInto(v[:], blob) {
		return nil
	}
	return &v
}

// DecodeImageVector decodes a cross-modal blob, or returns nil for any other length.
func DecodeImageVector(blob []byte) *ImageVector {
	var v ImageVector
	if !DecodeInto(v[:], blob) {
		return nil
	}
	return &v
}
