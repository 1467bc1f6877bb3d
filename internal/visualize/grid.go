package visualize

import (
	"errors"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/transform"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MinCellWidth is the width panels are upscaled to, at least, in a grid.
const MinCellWidth = 256

const (
	padding     = 8
	labelHeight = 18
	titleHeight = 28
)

var (
	background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	foreground = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	face       = basicfont.Face7x13
)

// ErrEmptyGrid is returned when a grid has no panels.
var ErrEmptyGrid = errors.New("grid has no panels")

// Grid lays panels out row by row under a title. Every cell has the size of
// the largest panel, scaled by a whole factor so cells are at least
// MinCellWidth wide. Panels keep their pixels (nearest neighbour).
func Grid(title string, rows [][]Panel) (*image.RGBA, error) {
	cols, maxW, maxH := 0, 0, 0
	for _, row := range rows {
		cols = max(cols, len(row))
		for _, p := range row {
			b := p.Image.Bounds()
			maxW = max(maxW, b.Dx())
			maxH = max(maxH, b.Dy())
		}
	}
	if cols == 0 || maxW == 0 || maxH == 0 {
		return nil, ErrEmptyGrid
	}

	scale := max(1, (MinCellWidth+maxW-1)/maxW)
	cellW, cellH := maxW*scale, maxH*scale
	stepX := cellW + padding
	stepY := labelHeight + cellH + padding

	width := padding + cols*stepX
	height := titleHeight + len(rows)*stepY + padding
	width = max(width, textWidth(title)+2*padding)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	drawText(img, title, (width-textWidth(title))/2, titleHeight-padding)

	for r, row := range rows {
		for c, p := range row {
			x := padding + c*stepX
			y := titleHeight + r*stepY
			drawText(img, p.Title, x+(cellW-textWidth(p.Title))/2, y+labelHeight-5)

			b := p.Image.Bounds()
			pw, ph := b.Dx()*scale, b.Dy()*scale
			scaled := transform.Resize(p.Image, pw, ph, transform.NearestNeighbor)
			at := image.Pt(x+(cellW-pw)/2, y+labelHeight+(cellH-ph)/2)
			draw.Draw(img, image.Rectangle{Min: at, Max: at.Add(image.Pt(pw, ph))}, scaled, image.Point{}, draw.Src)
		}
	}
	return img, nil
}

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// drawText draws s with its baseline at y.
func drawText(dst draw.Image, s string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(foreground),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
