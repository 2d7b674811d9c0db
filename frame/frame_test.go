package frame

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestPlaneSize(t *testing.T) {
	tests := []struct {
		w, h, want int
	}{
		{200, 200, 5000},
		{8, 1, 1},
		{9, 2, 4},
		{1, 1, 1},
	}
	for _, tt := range tests {
		if got := PlaneSize(tt.w, tt.h); got != tt.want {
			t.Errorf("PlaneSize(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestNewPlanesIsWhite(t *testing.T) {
	p := NewPlanes(16, 2)
	for i, v := range p.Black {
		if v != 0xFF {
			t.Fatalf("black[%d] = %#x, want 0xff", i, v)
		}
	}
	for i, v := range p.Chromatic {
		if v != 0x00 {
			t.Fatalf("chromatic[%d] = %#x, want 0", i, v)
		}
	}
}

func TestSetBitLayout(t *testing.T) {
	p := NewPlanes(16, 2)
	p.Set(0, 0, InkBlack)
	p.Set(9, 1, InkChromatic)
	p.Set(100, 100, InkBlack)

	if p.Black[0] != 0x7F {
		t.Fatalf("black[0] = %#x, want 0x7f", p.Black[0])
	}
	if p.Chromatic[3] != 0x40 {
		t.Fatalf("chromatic[3] = %#x, want 0x40", p.Chromatic[3])
	}
	if got := p.At(0, 0); got != InkBlack {
		t.Fatalf("At(0,0) = %d, want black", got)
	}
	if got := p.At(9, 1); got != InkChromatic {
		t.Fatalf("At(9,1) = %d, want chromatic", got)
	}

	for _, pt := range []image.Point{{16, 0}, {9, 2}, {-1, 0}, {0, -1}} {
		if got := p.At(pt.X, pt.Y); got != InkWhite {
			t.Fatalf("At(%d,%d) = %d, want white", pt.X, pt.Y, got)
		}
	}

	if got := NewPlanes(8, 1).At(9, 0); got != InkWhite {
		t.Fatalf("At past the last byte = %d, want white", got)
	}

	// Repainting white clears both planes.
	p.Set(9, 1, InkWhite)
	if p.Chromatic[3] != 0x00 || p.At(9, 1) != InkWhite {
		t.Fatalf("white repaint left ink: chromatic[3] = %#x", p.Chromatic[3])
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		c    color.Color
		want Ink
	}{
		{"white", color.White, InkWhite},
		{"black", color.Black, InkBlack},
		{"red", color.NRGBA{R: 255, A: 255}, InkChromatic},
		{"dark red", color.NRGBA{R: 150, G: 20, B: 20, A: 255}, InkChromatic},
		{"grey dark", color.Gray{Y: 0x40}, InkBlack},
		{"grey light", color.Gray{Y: 0xC0}, InkWhite},
		{"transparent black", color.NRGBA{A: 0}, InkWhite},
		{"orange", color.NRGBA{R: 255, G: 240, B: 0, A: 255}, InkWhite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.c); got != tt.want {
				t.Fatalf("Classify: got %d want %d", got, tt.want)
			}
		})
	}
}

func TestPack(t *testing.T) {
	img := image.NewNRGBA(image.Rect(10, 10, 26, 12))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	img.Set(10, 10, color.Black)
	img.Set(25, 11, color.NRGBA{R: 255, A: 255})

	p, err := Pack(img, 16, 2)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if p.At(0, 0) != InkBlack {
		t.Fatal("expected black at origin")
	}
	if p.At(15, 1) != InkChromatic {
		t.Fatal("expected chromatic at bottom right")
	}
	if p.At(5, 1) != InkWhite {
		t.Fatal("expected white elsewhere")
	}

	if _, err := Pack(img, 200, 200); err == nil {
		t.Fatal("expected size error")
	}
}

func TestOverlay(t *testing.T) {
	p := NewPlanes(8, 1)
	red := image.NewGray(image.Rect(0, 0, 8, 1))
	draw.Draw(red, red.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	red.SetGray(3, 0, color.Gray{})
	if err := p.Overlay(red); err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if p.Chromatic[0] != 0x10 {
		t.Fatalf("chromatic[0] = %#x, want 0x10", p.Chromatic[0])
	}
	if err := p.Overlay(image.NewGray(image.Rect(0, 0, 4, 4))); err == nil {
		t.Fatal("expected size error")
	}
}

func TestFit(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 100))
	got := Fit(img, 200, 200)
	if got.Bounds().Dx() != 200 || got.Bounds().Dy() != 200 {
		t.Fatalf("Fit bounds: got %v", got.Bounds())
	}
	// The letterbox stays white.
	if Classify(got.At(100, 0)) != InkWhite {
		t.Fatal("expected white letterbox")
	}

	same := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	if Fit(same, 200, 200) != image.Image(same) {
		t.Fatal("exact size image should be returned as is")
	}
}
