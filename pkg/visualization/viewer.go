package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"

	"fpringfit/internal/models"
	"fpringfit/pkg/imageio"
)

// Overlay renders detected rings on top of a calibration frame
type Overlay struct {
	// img is the scaled greyscale frame
	img *image.Gray16

	// rings are drawn in order; later rings paint over earlier ones
	rings []*models.Ring
}

// NewOverlay scales frame into 16-bit grey and prepares it for drawing
func NewOverlay(frame *models.Image, rings []*models.Ring) *Overlay {
	return &Overlay{
		img:   imageio.ToGray16(frame),
		rings: rings,
	}
}

// Render draws each ring's peak circle in white and its ±3 sigma bounds in
// black, returning the annotated image
func (o *Overlay) Render() image.Image {
	out := image.NewGray16(o.img.Bounds())
	copy(out.Pix, o.img.Pix)

	for _, r := range o.rings {
		drawCircle(out, r.Xc, r.Yc, r.PeakRadius, color.Gray16{Y: 65535})
		if r.Sigma > 0 {
			drawCircle(out, r.Xc, r.Yc, r.PeakRadius+3*r.Sigma, color.Gray16{Y: 0})
			if inner := r.PeakRadius - 3*r.Sigma; inner > 0 {
				drawCircle(out, r.Xc, r.Yc, inner, color.Gray16{Y: 0})
			}
		}
	}
	return out
}

// Save writes the rendered overlay as a JPEG image
func (o *Overlay) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create overlay file: %w", err)
	}
	defer file.Close()

	if err := jpeg.Encode(file, o.Render(), &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	return nil
}

// drawCircle plots a one-pixel circle, sampling often enough that
// neighbouring points touch
func drawCircle(img *image.Gray16, xc, yc, radius float64, c color.Gray16) {
	if radius <= 0 {
		return
	}
	steps := max(8, int(math.Ceil(2*math.Pi*radius)))
	b := img.Bounds()
	for i := 0; i < steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		x := int(math.Round(xc + radius*math.Cos(t)))
		y := int(math.Round(yc + radius*math.Sin(t)))
		if image.Pt(x, y).In(b) {
			img.SetGray16(x, y, c)
		}
	}
}
