package sprite

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// whiteWithBlackBlock paints a pure white canvas with one black rectangle.
func whiteWithBlackBlock(w, h int, block image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{255, 255, 255, 255}
			if image.Pt(x, y).In(block) {
				c = color.NRGBA{0, 0, 0, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestStripBackgroundBlackBlock(t *testing.T) {
	block := image.Rect(10, 12, 25, 30)
	src := whiteWithBlackBlock(64, 48, block)

	out, bounds := StripBackground(src)

	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			a := out.Pix[out.PixOffset(x, y)+3]
			if image.Pt(x, y).In(block) {
				if a != 255 {
					t.Fatalf("content pixel (%d,%d) lost alpha: %d", x, y, a)
				}
			} else if a != 0 {
				t.Fatalf("background pixel (%d,%d) kept alpha: %d", x, y, a)
			}
		}
	}
	if bounds != block {
		t.Fatalf("bounds %v, want %v", bounds, block)
	}
}

func TestStripBackgroundAllBackground(t *testing.T) {
	src := whiteWithBlackBlock(16, 8, image.Rectangle{})

	out, bounds := StripBackground(src)

	if bounds != image.Rect(0, 0, 16, 8) {
		t.Fatalf("empty content must default to full bounds, got %v", bounds)
	}
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 0 {
			t.Fatalf("expected fully transparent output")
		}
	}
}

func TestStripBackgroundNearThreshold(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{255, 255, 255, 255})
	// Distance 19 on one channel: inside the threshold, stripped.
	img.SetNRGBA(1, 0, color.NRGBA{236, 255, 255, 255})
	// Distance 20: at the threshold, kept (strict less-than).
	img.SetNRGBA(2, 0, color.NRGBA{235, 255, 255, 255})

	out, _ := StripBackground(img)

	if out.Pix[out.PixOffset(1, 0)+3] != 0 {
		t.Fatalf("pixel within threshold should be transparent")
	}
	if out.Pix[out.PixOffset(2, 0)+3] != 255 {
		t.Fatalf("pixel at threshold should stay opaque")
	}
}

func TestProcessDecodableImage(t *testing.T) {
	src := whiteWithBlackBlock(20, 20, image.Rect(5, 5, 10, 10))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Process(buf.Bytes())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got.Width != 20 || got.Height != 20 {
		t.Fatalf("dimensions %dx%d", got.Width, got.Height)
	}
	if got.Bounds != image.Rect(5, 5, 10, 10) {
		t.Fatalf("bounds %v", got.Bounds)
	}

	decoded, err := png.Decode(bytes.NewReader(got.PNG))
	if err != nil {
		t.Fatalf("output not decodable: %v", err)
	}
	if decoded.Bounds().Dx() != 20 {
		t.Fatalf("output resized unexpectedly")
	}
}

func TestProcessUndecodableInputDegrades(t *testing.T) {
	raw := []byte("not an image at all")

	got, err := Process(raw)
	if err != nil {
		t.Fatalf("undecodable input must not error, got %v", err)
	}
	if !bytes.Equal(got.PNG, raw) {
		t.Fatalf("original bytes must pass through untouched")
	}
}

func TestThumbnailDownscales(t *testing.T) {
	src := whiteWithBlackBlock(200, 100, image.Rect(0, 0, 50, 50))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode: %v", err)
	}

	thumb, err := Thumbnail(buf.Bytes(), 64)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decode thumb: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Fatalf("thumb size %v", img.Bounds())
	}
}
