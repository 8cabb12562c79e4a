package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// pngCodec is the built-in PNG binding. Tiles in this pipeline are
// overwhelmingly single-channel microscopy data, so grayscale stays
// grayscale; everything else is flattened to NRGBA.
type pngCodec struct{}

func (pngCodec) Decode(data []byte) (*Image, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if gray, ok := src.(*image.Gray); ok {
		pix := make([]uint8, width*height)
		for y := 0; y < height; y++ {
			copy(pix[y*width:(y+1)*width], gray.Pix[y*gray.Stride:y*gray.Stride+width])
		}
		return &Image{Width: width, Height: height, Channels: 1, Pix: pix}, nil
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	return &Image{Width: width, Height: height, Channels: 4, Pix: rgba.Pix}, nil
}

func (pngCodec) Encode(img *Image, params Params) ([]byte, error) {
	level, err := pngCompressionLevel(params.Level)
	if err != nil {
		return nil, err
	}

	var canvas image.Image
	switch img.Channels {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
		copy(gray.Pix, img.Pix)
		canvas = gray
	case 3:
		rgba := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
		for i := 0; i < img.Width*img.Height; i++ {
			rgba.Pix[i*4+0] = img.Pix[i*3+0]
			rgba.Pix[i*4+1] = img.Pix[i*3+1]
			rgba.Pix[i*4+2] = img.Pix[i*3+2]
			rgba.Pix[i*4+3] = 0xff
		}
		canvas = rgba
	case 4:
		rgba := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
		copy(rgba.Pix, img.Pix)
		canvas = rgba
	default:
		return nil, fmt.Errorf("png: unsupported channel count %d", img.Channels)
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: level}
	if err := encoder.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pngCompressionLevel maps the zlib-style 0-9 level onto the coarser
// tiers the standard encoder exposes. Zero means default, which here is
// compressing hard: archival tile batches favor size over speed.
func pngCompressionLevel(level int) (png.CompressionLevel, error) {
	switch {
	case level == 0:
		return png.BestCompression, nil
	case level >= 1 && level <= 3:
		return png.BestSpeed, nil
	case level >= 4 && level <= 6:
		return png.DefaultCompression, nil
	case level >= 7 && level <= 9:
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("png: level %d out of range (0-9)", level)
	}
}

// GraySample returns the luminance at (x, y) for detector code that only
// needs intensity.
func (img *Image) GraySample(x, y int) uint8 {
	idx := (y*img.Width + x) * img.Channels
	switch img.Channels {
	case 1:
		return img.Pix[idx]
	default:
		r, g, b := img.Pix[idx], img.Pix[idx+1], img.Pix[idx+2]
		return uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
	}
}
