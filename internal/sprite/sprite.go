package sprite

import (
	"bytes"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"
)

// colorDistanceThreshold is the per-channel RGB distance below which a
// pixel counts as background.
const colorDistanceThreshold = 20

// StripBackground removes the uniform background of a generated sprite.
// The top-left pixel is the background reference; every pixel whose squared
// RGB distance to it falls below the threshold gets zero alpha. The returned
// rectangle is the tight bounds of remaining opaque content, or the full
// image when nothing opaque remains.
func StripBackground(src image.Image) (*image.NRGBA, image.Rectangle) {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	bgR, bgG, bgB, _ := src.At(b.Min.X, b.Min.Y).RGBA()
	bgr, bgg, bgb := int(bgR>>8), int(bgG>>8), int(bgB>>8)
	threshold := colorDistanceThreshold * colorDistanceThreshold

	minX, minY := b.Dx(), b.Dy()
	maxX, maxY := -1, -1

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r16, g16, b16, a16 := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			r, g, bl, a := int(r16>>8), int(g16>>8), int(b16>>8), uint8(a16>>8)

			dr, dg, db := r-bgr, g-bgg, bl-bgb
			if dr*dr+dg*dg+db*db < threshold {
				a = 0
			}

			i := out.PixOffset(x, y)
			out.Pix[i] = uint8(r)
			out.Pix[i+1] = uint8(g)
			out.Pix[i+2] = uint8(bl)
			out.Pix[i+3] = a

			if a > 0 {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if maxX < minX || maxY < minY {
		return out, image.Rect(0, 0, b.Dx(), b.Dy())
	}
	return out, image.Rect(minX, minY, maxX+1, maxY+1)
}

// Processed is the outcome of a background-stripping pass.
type Processed struct {
	PNG    []byte
	Bounds image.Rectangle
	Width  int
	Height int
}

// Process decodes the generated image, strips its background and re-encodes
// as PNG. Undecodable input comes back untouched with zero bounds and no
// error, since a sprite we cannot read is still better displayed than
// dropped.
func Process(data []byte) (Processed, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Processed{PNG: data, Bounds: image.Rectangle{}, Width: 0, Height: 0}, nil
	}

	stripped, bounds := StripBackground(src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, stripped); err != nil {
		return Processed{PNG: data, Bounds: bounds, Width: src.Bounds().Dx(), Height: src.Bounds().Dy()}, nil
	}
	return Processed{
		PNG:    buf.Bytes(),
		Bounds: bounds,
		Width:  src.Bounds().Dx(),
		Height: src.Bounds().Dy(),
	}, nil
}
