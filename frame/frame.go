// Package frame turns images into the two 1bpp planes a tri-color panel
// expects.
//
// Both planes are row major, MSB first, with (width+7)/8 bytes per row:
//
//	byteIndex = y*stride + x>>3
//	mask      = 0x80 >> (x & 7)
//
// In the achromatic plane a set bit is white and a clear bit is black. In the
// chromatic plane a set bit is coloured ink.
package frame

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Ink is what a pixel becomes on the panel.
type Ink int

const (
	InkWhite Ink = iota
	InkBlack
	InkChromatic
)

// Stride returns the plane bytes per row for width pixels.
func Stride(width int) int {
	return (width + 7) / 8
}

// PlaneSize returns the plane length for a width x height panel.
func PlaneSize(width, height int) int {
	return Stride(width) * height
}

// Planes is a packed achromatic/chromatic pair.
type Planes struct {
	Width, Height int
	Black         []byte
	Chromatic     []byte
}

// NewPlanes returns an all white frame.
func NewPlanes(width, height int) *Planes {
	p := &Planes{
		Width:     width,
		Height:    height,
		Black:     make([]byte, PlaneSize(width, height)),
		Chromatic: make([]byte, PlaneSize(width, height)),
	}
	for i := range p.Black {
		p.Black[i] = 0xFF
	}
	return p
}

// Set paints pixel (x, y). Out of range pixels are ignored.
func (p *Planes) Set(x, y int, ink Ink) {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return
	}
	i := y*Stride(p.Width) + x>>3
	mask := byte(0x80 >> (x & 7))
	p.Black[i] |= mask
	p.Chromatic[i] &^= mask
	switch ink {
	case InkBlack:
		p.Black[i] &^= mask
	case InkChromatic:
		p.Chromatic[i] |= mask
	}
}

// At reports the ink at (x, y). Chromatic wins if both planes are inked. Out
// of range pixels are white.
func (p *Planes) At(x, y int) Ink {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return InkWhite
	}
	i := y*Stride(p.Width) + x>>3
	mask := byte(0x80 >> (x & 7))
	switch {
	case p.Chromatic[i]&mask != 0:
		return InkChromatic
	case p.Black[i]&mask == 0:
		return InkBlack
	}
	return InkWhite
}

// Classify decides the ink for c. Transparent pixels are white, clearly red
// pixels are chromatic and the rest follow the 1-bit threshold of image1bit.
func Classify(c color.Color) Ink {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A < 0x80 {
		return InkWhite
	}
	maxGB := n.G
	if n.B > maxGB {
		maxGB = n.B
	}
	if n.R > 128 && int(n.R)-int(maxGB) > 32 {
		return InkChromatic
	}
	if image1bit.BitModel.Convert(c).(image1bit.Bit) == image1bit.Off {
		return InkBlack
	}
	return InkWhite
}

// Pack converts img into planes. img must be exactly width x height.
func Pack(img image.Image, width, height int) (*Planes, error) {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("frame: expected %dx%d image, got %dx%d", width, height, b.Dx(), b.Dy())
	}
	p := NewPlanes(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if ink := Classify(img.At(b.Min.X+x, b.Min.Y+y)); ink != InkWhite {
				p.Set(x, y, ink)
			}
		}
	}
	return p, nil
}

// Fit scales img to fit inside width x height, keeping its aspect ratio, and
// centres it on a white canvas of exactly that size.
func Fit(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	canvas := imaging.New(width, height, color.White)
	return imaging.PasteCenter(canvas, imaging.Fit(img, width, height, imaging.Lanczos))
}

// Overlay merges the inked pixels of red into the chromatic plane of p.
// Pixels that are not white in red become chromatic.
func (p *Planes) Overlay(red image.Image) error {
	b := red.Bounds()
	if b.Dx() != p.Width || b.Dy() != p.Height {
		return fmt.Errorf("frame: expected %dx%d overlay, got %dx%d", p.Width, p.Height, b.Dx(), b.Dy())
	}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			if Classify(red.At(b.Min.X+x, b.Min.Y+y)) != InkWhite {
				p.Set(x, y, InkChromatic)
			}
		}
	}
	return nil
}
