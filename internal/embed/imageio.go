package embed

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// DefaultImageInputSize is the square side length images are resized to.
const DefaultImageInputSize = 224

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsSupportedImage reports whether path has an allow-listed image
// extension. The comparison is case-insensitive.
func IsSupportedImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// SupportedImageExtensions lists the allow-list, for help output.
func SupportedImageExtensions() []string {
	return []string{".bmp", ".gif", ".jpeg", ".jpg", ".png", ".tif", ".tiff", ".webp"}
}

// RGBImage is a packed 8-bit RGB raster, row-major, 3 bytes per pixel.
type RGBImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// PixelBuffer is caller-supplied raw pixel data with 1 (gray), 3 (RGB)
// or 4 (RGBA) interleaved 8-bit channels.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// ToRGB converts the buffer to canonical 3-channel layout: gray is
// replicated into R, G and B, and alpha is dropped.
func (b PixelBuffer) ToRGB() (*RGBImage, error) {
	if b.Width <= 0 || b.Height <= 0 {
		return nil, amerrors.Newf(amerrors.ErrCodeInvalidInput, "invalid image size %dx%d", b.Width, b.Height)
	}
	switch b.Channels {
	case 1, 3, 4:
	default:
		return nil, amerrors.Newf(amerrors.ErrCodeUnsupportedFormat, "unsupported channel count %d", b.Channels)
	}
	n := b.Width * b.Height
	if len(b.Pix) < n*b.Channels {
		return nil, amerrors.Newf(amerrors.ErrCodeInvalidInput,
			"pixel buffer has %d bytes, need %d", len(b.Pix), n*b.Channels)
	}

	out := &RGBImage{Width: b.Width, Height: b.Height, Pix: make([]uint8, n*3)}
	for i := 0; i < n; i++ {
		src := b.Pix[i*b.Channels:]
		dst := out.Pix[i*3 : i*3+3]
		if b.Channels == 1 {
			dst[0], dst[1], dst[2] = src[0], src[0], src[0]
		} else {
			dst[0], dst[1], dst[2] = src[0], src[1], src[2]
		}
	}
	return out, nil
}

// LoadImage decodes the image at path. Extensions outside the allow-list
// fail UnsupportedFormat; missing or undecodable files fail FileUnreadable.
func LoadImage(path string) (image.Image, error) {
	if !IsSupportedImage(path) {
		return nil, amerrors.Newf(amerrors.ErrCodeUnsupportedFormat,
			"unsupported image format %q", filepath.Ext(path)).WithDetail("path", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeFileUnreadable,
			fmt.Sprintf("cannot open image: %s", path), err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeFileUnreadable,
			fmt.Sprintf("cannot decode image: %s", path), err)
	}
	return img, nil
}

// resizeToRGB scales img to size x size and packs it as RGB.
func resizeToRGB(img image.Image, size int) *RGBImage {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := &RGBImage{Width: size, Height: size, Pix: make([]uint8, size*size*3)}
	for i := 0; i < size*size; i++ {
		copy(out.Pix[i*3:i*3+3], dst.Pix[i*4:i*4+3])
	}
	return out
}

// rgbImage adapts RGBImage to image.Image so it can be rescaled.
type rgbImage struct{ *RGBImage }

func (r rgbImage) ColorModel() color.Model { return color.RGBAModel }

func (r rgbImage) Bounds() image.Rectangle { return image.Rect(0, 0, r.Width, r.Height) }

func (r rgbImage) At(x, y int) color.Color {
	i := (y*r.Width + x) * 3
	return color.RGBA{R: r.Pix[i], G: r.Pix[i+1], B: r.Pix[i+2], A: 0xff}
}

// fit returns img at size x size, rescaling only when needed.
func (img *RGBImage) fit(size int) *RGBImage {
	if img.Width == size && img.Height == size {
		return img
	}
	return resizeToRGB(rgbImage{img}, size)
}
