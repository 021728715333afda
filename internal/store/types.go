// Package store persists indexed file entities and their embeddings in
// SQLite and ranks them by cosine similarity with a linear scan.
package store

import (
	"time"

	"github.com/Aman-CERP/amanfind/internal/embed"
)

// CurrentSchemaVersion is the schema a fresh store is created at and the
// version migrations bring older stores up to.
const CurrentSchemaVersion = 3

// FileType is the coarse classification of an indexed file.
type FileType string

const (
	FileTypeText     FileType = "text"
	FileTypeCode     FileType = "code"
	FileTypeDocument FileType = "document"
	FileTypeImage    FileType = "image"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
	FileTypeArchive  FileType = "archive"
	FileTypeUnknown  FileType = "unknown"
)

// AllFileTypes lists every FileType in display order.
var AllFileTypes = []FileType{
	FileTypeText, FileTypeCode, FileTypeDocument, FileTypeImage,
	FileTypeAudio, FileTypeVideo, FileTypeArchive, FileTypeUnknown,
}

// ParseFileType returns the FileType named s, or FileTypeUnknown.
func ParseFileType(s string) FileType {
	for _, t := range AllFileTypes {
		if string(t) == s {
			return t
		}
	}
	return FileTypeUnknown
}

// Embeddable reports whether files of this type get a text embedding.
func (t FileType) Embeddable() bool {
	return t == FileTypeText || t == FileTypeCode
}

// Entity is one indexed file. Path is the identity key.
type Entity struct {
	Path      string
	Name      string
	Type      FileType
	Size      int64
	ModTime   time.Time
	IndexedAt time.Time

	// Embedding is nil when HasEmbedding is false. Stored blobs of the
	// wrong length read back as no embedding.
	Embedding    *embed.TextVector
	HasEmbedding bool

	ImageEmbedding    *embed.ImageVector
	HasImageEmbedding bool
}

// IndexParams is the input to Store.Index. Either embedding may be nil
// for a metadata-only row.
type IndexParams struct {
	Path           string
	Name           string // defaults to the base name of Path
	Type           FileType
	Size           int64
	ModTime        time.Time
	Embedding      *embed.TextVector
	ImageEmbedding *embed.ImageVector
}

// SearchResult is a ranked match. Entity carries metadata only; the
// stored vectors are not copied into results.
type SearchResult struct {
	Entity *Entity
	Score  float32
}

// Run is one recorded indexing pass.
type Run struct {
	ID         string
	Roots      []string
	StartedAt  time.Time
	FinishedAt time.Time
	Indexed    int
	Skipped    int
	Failed     int
	TotalBytes int64
	Status     string
}

// EmbeddingStats counts rows by which embeddings they carry.
type EmbeddingStats struct {
	Total     int
	WithText  int
	WithImage int
}
