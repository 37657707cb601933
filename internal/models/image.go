package models

import "fmt"

// Image is a 2D calibration frame stored as a row-major float64 array.
// Pixel (x, y) lives at Data[y*Width+x].
type Image struct {
	// Data is the pixel intensity array in row-major order
	Data []float64

	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int
}

// NewImage allocates a zero-filled image of the given size
func NewImage(width, height int) *Image {
	return &Image{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// NewImageFromData wraps an existing row-major array without copying it
func NewImageFromData(data []float64, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("data length %d does not match %dx%d", len(data), width, height)
	}
	return &Image{Data: data, Width: width, Height: height}, nil
}

// At returns the intensity at column x, row y
func (im *Image) At(x, y int) float64 {
	return im.Data[y*im.Width+x]
}

// Set stores v at column x, row y
func (im *Image) Set(x, y int, v float64) {
	im.Data[y*im.Width+x] = v
}

// Row returns a copy of row y, clamped to the image
func (im *Image) Row(y int) []float64 {
	y = clampIndex(y, im.Height)
	row := make([]float64, im.Width)
	copy(row, im.Data[y*im.Width:(y+1)*im.Width])
	return row
}

// Column returns a copy of column x, clamped to the image
func (im *Image) Column(x int) []float64 {
	x = clampIndex(x, im.Width)
	col := make([]float64, im.Height)
	for y := 0; y < im.Height; y++ {
		col[y] = im.Data[y*im.Width+x]
	}
	return col
}

// Clone returns a deep copy of the image
func (im *Image) Clone() *Image {
	data := make([]float64, len(im.Data))
	copy(data, im.Data)
	return &Image{Data: data, Width: im.Width, Height: im.Height}
}

// Midpoint returns the geometric centre used when no centre hint is known
func (im *Image) Midpoint() (float64, float64) {
	return 0.5 * float64(im.Width), 0.5 * float64(im.Height)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
