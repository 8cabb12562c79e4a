package codec_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"tilexfer/internal/codec"
)

// fakeBMP round-trips a trivial raw format for tests: width, height, then
// raw grayscale bytes.
type fakeBMP struct{}

func (fakeBMP) Decode(data []byte) (*codec.Image, error) {
	if len(data) < 2 {
		return nil, errors.New("short fake bmp")
	}
	w, h := int(data[0]), int(data[1])
	if len(data) < 2+w*h {
		return nil, errors.New("truncated fake bmp")
	}
	return &codec.Image{Width: w, Height: h, Channels: 1, Pix: data[2 : 2+w*h]}, nil
}

func (fakeBMP) Encode(img *codec.Image, _ codec.Params) ([]byte, error) {
	out := []byte{byte(img.Width), byte(img.Height)}
	return append(out, img.Pix...), nil
}

func encodeFakeBMP(t *testing.T, w, h int) []byte {
	t.Helper()
	data := []byte{byte(w), byte(h)}
	for i := 0; i < w*h; i++ {
		data = append(data, byte(i))
	}
	return data
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"PNG":    "png",
		"jpg":    "jpeg",
		"jpegxl": "jxl",
		"JXL":    "jxl",
		"tif":    "tiff",
		"bmp":    "bmp",
	}
	for in, want := range cases {
		if got := codec.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDestName(t *testing.T) {
	if got := codec.DestName("stack/row1/tile_0_0.bmp", "jpegxl"); got != "stack/row1/tile_0_0.jxl" {
		t.Fatalf("unexpected dest name %q", got)
	}
	if got := codec.DestName("plain.tif", "tiff"); got != "plain.tiff" {
		t.Fatalf("unexpected dest name %q", got)
	}
}

func TestIdentifier(t *testing.T) {
	if got := codec.Identifier("a/b/tile.bmp"); got != "a/b/tile" {
		t.Fatalf("unexpected identifier %q", got)
	}
	if got := codec.Identifier("noext"); got != "noext" {
		t.Fatalf("unexpected identifier %q", got)
	}
}

func TestTranscodePassthroughSameEncoding(t *testing.T) {
	tr := codec.NewTranscoder()
	data := []byte("opaque bytes, no codec registered for bmp")
	name, out, err := tr.Transcode(context.Background(), "tile.bmp", data, codec.Params{Encoding: "bmp"}, nil)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if name != "tile.bmp" || !bytes.Equal(out, data) {
		t.Fatalf("expected untouched passthrough, got %q (%d bytes)", name, len(out))
	}
}

func TestTranscodeRewritesEncoding(t *testing.T) {
	tr := codec.NewTranscoder()
	tr.Register("bmp", fakeBMP{})
	data := encodeFakeBMP(t, 4, 4)

	name, out, err := tr.Transcode(context.Background(), "tile.bmp", data, codec.Params{Encoding: "png"}, nil)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if name != "tile.png" {
		t.Fatalf("unexpected dest name %q", name)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid png: %v", err)
	}
	if decoded.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Fatalf("unexpected bounds %v", decoded.Bounds())
	}
}

func TestTranscodeUnsupportedEncoding(t *testing.T) {
	tr := codec.NewTranscoder()
	_, _, err := tr.Transcode(context.Background(), "tile.webp", []byte("x"), codec.Params{Encoding: "png"}, nil)
	if !errors.Is(err, codec.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	tr.Register("bmp", fakeBMP{})
	_, _, err = tr.Transcode(context.Background(), "tile.bmp", encodeFakeBMP(t, 2, 2), codec.Params{Encoding: "heif"}, nil)
	if !errors.Is(err, codec.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for target, got %v", err)
	}
}

func TestInspectorSeesDecodedPixels(t *testing.T) {
	tr := codec.NewTranscoder()
	tr.Register("bmp", fakeBMP{})

	var seen *codec.Image
	inspect := func(_ context.Context, name string, img *codec.Image) error {
		seen = img
		return nil
	}
	_, _, err := tr.Transcode(context.Background(), "tile.bmp", encodeFakeBMP(t, 3, 2), codec.Params{Encoding: "png"}, inspect)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if seen == nil || seen.Width != 3 || seen.Height != 2 {
		t.Fatalf("inspector did not see decoded image: %+v", seen)
	}
}

func TestInspectorErrorAbortsTranscode(t *testing.T) {
	tr := codec.NewTranscoder()
	tr.Register("bmp", fakeBMP{})

	boom := errors.New("skip this one")
	inspect := func(_ context.Context, _ string, _ *codec.Image) error { return boom }
	_, _, err := tr.Transcode(context.Background(), "tile.bmp", encodeFakeBMP(t, 2, 2), codec.Params{Encoding: "png"}, inspect)
	if !errors.Is(err, boom) {
		t.Fatalf("expected inspector error, got %v", err)
	}
}

func TestInspectorForcesDecodeOnPassthrough(t *testing.T) {
	tr := codec.NewTranscoder()
	tr.Register("bmp", fakeBMP{})

	called := false
	inspect := func(_ context.Context, _ string, _ *codec.Image) error {
		called = true
		return nil
	}
	data := encodeFakeBMP(t, 2, 2)
	name, out, err := tr.Transcode(context.Background(), "tile.bmp", data, codec.Params{Encoding: "bmp"}, inspect)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if !called {
		t.Fatal("inspector must run even when encoding is unchanged")
	}
	if name != "tile.bmp" || !bytes.Equal(out, data) {
		t.Fatal("same-encoding output must keep the original bytes")
	}
}

func TestRegisteredRecodeBypassesPixels(t *testing.T) {
	tr := codec.NewTranscoder()
	tr.RegisterRecode("jpeg", "jxl", func(data []byte) ([]byte, error) {
		return append([]byte("jxl:"), data...), nil
	})

	name, out, err := tr.Transcode(context.Background(), "tile.jpeg", []byte("jpegbits"), codec.Params{Encoding: "jxl"}, nil)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if name != "tile.jxl" || string(out) != "jxl:jpegbits" {
		t.Fatalf("unexpected recode result %q %q", name, out)
	}

	// A forced quality level disables the reversible shortcut.
	_, _, err = tr.Transcode(context.Background(), "tile.jpeg", []byte("jpegbits"), codec.Params{Encoding: "jxl", Level: 90}, nil)
	if !errors.Is(err, codec.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported without a jpeg codec, got %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	for _, value := range []string{"", "none", "NONE"} {
		mode, err := codec.ParseCompression(value)
		if err != nil || mode != "" {
			t.Errorf("ParseCompression(%q) = %q, %v", value, mode, err)
		}
	}
	for _, value := range []string{"gzip", "br", "zstd", "lz4"} {
		if _, err := codec.ParseCompression(value); err == nil {
			t.Errorf("expected %q to be rejected", value)
		}
	}
}

func TestPNGHonorsLevel(t *testing.T) {
	tr := codec.NewTranscoder()
	tr.Register("bmp", fakeBMP{})
	data := encodeFakeBMP(t, 16, 16)

	// A fast level and a thorough one both yield decodable output, and
	// the fast level never compresses harder.
	var sizes [2]int
	for i, level := range []int{1, 9} {
		_, out, err := tr.Transcode(context.Background(), "tile.bmp", data, codec.Params{Encoding: "png", Level: level}, nil)
		if err != nil {
			t.Fatalf("Transcode at level %d failed: %v", level, err)
		}
		if _, err := png.Decode(bytes.NewReader(out)); err != nil {
			t.Fatalf("level %d output is not valid png: %v", level, err)
		}
		sizes[i] = len(out)
	}
	if sizes[0] < sizes[1] {
		t.Fatalf("level 1 output (%d bytes) smaller than level 9 (%d bytes)", sizes[0], sizes[1])
	}

	_, _, err := tr.Transcode(context.Background(), "tile.bmp", data, codec.Params{Encoding: "png", Level: 42}, nil)
	if err == nil {
		t.Fatal("expected out-of-range level to be rejected")
	}
}

func TestPNGRoundTripGray(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i * 16)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	tr := codec.NewTranscoder()
	var seen *codec.Image
	inspect := func(_ context.Context, _ string, img *codec.Image) error {
		seen = img
		return nil
	}
	_, _, err := tr.Transcode(context.Background(), "tile.png", buf.Bytes(), codec.Params{Encoding: "png"}, inspect)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if seen.Channels != 1 || seen.Width != 4 || seen.Height != 4 {
		t.Fatalf("unexpected decode: %+v", seen)
	}
	if seen.GraySample(1, 0) != 16 {
		t.Fatalf("unexpected sample: %d", seen.GraySample(1, 0))
	}
}
