package visual

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/net/html"
)

// blockColors assigns each sketched element kind a fixed color so structural
// changes always move pixels.
var blockColors = map[string]color.RGBA{
	"h1":     {R: 0x1f, G: 0x3a, B: 0x6e, A: 0xff},
	"h2":     {R: 0x2d, G: 0x55, B: 0x8f, A: 0xff},
	"h3":     {R: 0x3e, G: 0x6f, B: 0xaf, A: 0xff},
	"p":      {R: 0x6b, G: 0x6b, B: 0x6b, A: 0xff},
	"a":      {R: 0x0b, G: 0x6e, B: 0xc5, A: 0xff},
	"button": {R: 0x1d, G: 0x8a, B: 0x43, A: 0xff},
	"input":  {R: 0xc9, G: 0xa2, B: 0x27, A: 0xff},
	"select": {R: 0xc9, G: 0x7b, B: 0x27, A: 0xff},
	"label":  {R: 0x7a, G: 0x4f, B: 0x9e, A: 0xff},
	"img":    {R: 0x9e, G: 0x4f, B: 0x4f, A: 0xff},
	"div":    {R: 0xb8, G: 0xcc, B: 0xe0, A: 0xff},
	"li":     {R: 0x8c, G: 0x8c, B: 0xa8, A: 0xff},
}

const (
	rowHeight = 16
	rowGap    = 4
	indentPx  = 12
	marginPx  = 8
)

// sketch rasterizes the parse tree into a deterministic layout image: one
// colored row per element, indented by depth, width proportional to text
// length.
func sketch(doc *html.Node, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(img, img.Bounds(), color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})

	y := marginPx
	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		if y+rowHeight > height {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "head", "script", "style":
				return
			}
			if c, ok := blockColors[n.Data]; ok {
				x := marginPx + depth*indentPx
				if x < width {
					w := blockWidth(n, width-x-marginPx)
					fillRect(img, image.Rect(x, y, x+w, y+rowHeight), c)
					y += rowHeight + rowGap
				}
			}
			depth++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth)
		}
	}
	walk(doc, 0)
	return img
}

// blockWidth scales with the element's direct text so copy changes move
// pixels even when structure does not.
func blockWidth(n *html.Node, max int) int {
	text := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text += len(strings.TrimSpace(c.Data))
		}
	}
	w := 24 + text*6
	if w > max {
		w = max
	}
	if w < 4 {
		w = 4
	}
	return w
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}
