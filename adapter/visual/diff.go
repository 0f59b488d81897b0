package visual

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// comparison is the outcome of diffing one capture against its baseline.
type comparison struct {
	// ratio is differing unmasked pixels over total unmasked pixels.
	ratio float64

	// diff highlights differing pixels in red over a faded baseline.
	diff *image.RGBA
}

// compare diffs two captures pixel by pixel. Masked regions never count.
// A dimension mismatch counts every pixel as different.
func compare(baseline, current *image.RGBA, masks []Mask) comparison {
	bounds := baseline.Bounds()
	if !bounds.Eq(current.Bounds()) {
		diff := image.NewRGBA(bounds)
		fillRect(diff, bounds, color.RGBA{R: 0xff, A: 0xff})
		return comparison{ratio: 1, diff: diff}
	}

	inMask := func(x, y int) bool {
		for _, m := range masks {
			if x >= m.X && x < m.X+m.W && y >= m.Y && y < m.Y+m.H {
				return true
			}
		}
		return false
	}

	diff := image.NewRGBA(bounds)
	total := 0
	differing := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			b := baseline.RGBAAt(x, y)
			diff.SetRGBA(x, y, fade(b))

			if inMask(x, y) {
				continue
			}
			total++
			if b != current.RGBAAt(x, y) {
				differing++
				diff.SetRGBA(x, y, color.RGBA{R: 0xff, A: 0xff})
			}
		}
	}

	c := comparison{diff: diff}
	if total > 0 {
		c.ratio = float64(differing) / float64(total)
	}
	return c
}

// fade washes a baseline pixel out so highlighted differences stand out.
func fade(c color.RGBA) color.RGBA {
	return color.RGBA{
		R: 0xff - (0xff-c.R)/4,
		G: 0xff - (0xff-c.G)/4,
		B: 0xff - (0xff-c.B)/4,
		A: 0xff,
	}
}

// loadPNG reads a stored capture.
func loadPNG(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if rgba, ok := decoded.(*image.RGBA); ok {
		return rgba, nil
	}
	bounds := decoded.Bounds()
	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x, y, decoded.At(x, y))
		}
	}
	return rgba, nil
}

// savePNG writes a capture, creating parent directories.
func savePNG(path string, img *image.RGBA) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
