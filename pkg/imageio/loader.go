// Package imageio converts calibration frames on disk into float images.
package imageio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"fpringfit/internal/models"
)

// Load reads a PNG, JPEG or TIFF frame and returns its luminance as a
// float image. 16-bit greyscale frames keep their full range (0-65535).
func Load(path string) (*models.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		img, err = tiff.Decode(file)
	default:
		img, _, err = image.Decode(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return FromImage(img), nil
}

// FromImage converts any image to a float image of grey levels
func FromImage(img image.Image) *models.Image {
	bounds := img.Bounds()
	out := models.NewImage(bounds.Dx(), bounds.Dy())

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			var v float64
			switch g := c.(type) {
			case color.Gray16:
				v = float64(g.Y)
			case color.Gray:
				v = float64(g.Y) * 257
			default:
				v = float64(color.Gray16Model.Convert(c).(color.Gray16).Y)
			}
			out.Data[y*out.Width+x] = v
		}
	}
	return out
}

// LoadRaw reads a headerless little-endian float64 frame of the given width
func LoadRaw(path string, width int) (*models.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return ReadRaw(file, width)
}

// ReadRaw decodes little-endian float64 samples until EOF
func ReadRaw(r io.Reader, width int) (*models.Image, error) {
	if width <= 0 {
		return nil, fmt.Errorf("raw frame width must be positive, got %d", width)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw frame: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("raw frame size %d is not a multiple of 8 bytes", len(raw))
	}
	n := len(raw) / 8
	if n%width != 0 {
		return nil, fmt.Errorf("raw frame of %d samples is not divisible by width %d", n, width)
	}

	data := make([]float64, n)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return models.NewImageFromData(data, width, n/width)
}

// WriteRaw encodes img as little-endian float64 samples
func WriteRaw(w io.Writer, img *models.Image) error {
	buf := make([]byte, 8*len(img.Data))
	for i, v := range img.Data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}

// ToGray16 scales img linearly between its minimum and maximum into a
// 16-bit greyscale image
func ToGray16(img *models.Image) *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range img.Data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			v := (img.At(x, y) - lo) * scale
			out.SetGray16(x, y, color.Gray16{Y: uint16(math.Max(0, math.Min(65535, v)))})
		}
	}
	return out
}

// SaveTIFF writes img as a 16-bit greyscale TIFF
func SaveTIFF(path string, img *models.Image) error {
	return saveWith(path, func(w io.Writer) error {
		return tiff.Encode(w, ToGray16(img), &tiff.Options{Compression: tiff.Deflate})
	})
}

// SaveRaw writes img as little-endian float64 samples that LoadRaw reads
// back exactly
func SaveRaw(path string, img *models.Image) error {
	return saveWith(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := WriteRaw(bw, img); err != nil {
			return err
		}
		return bw.Flush()
	})
}

func saveWith(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}
