// Package codec converts tile images between encodings. Concrete codecs
// register against a Transcoder by encoding name; the pipeline only sees
// the Transcode entry point, so bindings for native libraries can slot in
// without touching the transfer machinery.
package codec

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported marks an encoding with no registered codec. The worker
// treats it as a permanent failure since retrying cannot help.
var ErrUnsupported = errors.New("encoding not supported")

// Params carries the encoding configuration recorded at init.
type Params struct {
	// Encoding is the target encoding name (normalized aliases accepted).
	Encoding string
	// Compression selects a codec-specific mode, when the codec has one.
	Compression string
	// Level is the quality/compression level. Zero means codec default.
	Level int
	// Effort and DecodingSpeed tune JPEG XL encoding.
	Effort        int
	DecodingSpeed int
	// Threads is the per-encode parallelism hint.
	Threads int
}

// Image is a decoded tile: row-major interleaved samples, 8 bits per
// channel.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// Inspector examines the decoded pixels before encoding. Returning an
// error aborts the transcode; sentinel errors let callers signal
// dispositions like skipping the job entirely.
type Inspector func(ctx context.Context, name string, img *Image) error

// Codec decodes and encodes one image format.
type Codec interface {
	Decode(data []byte) (*Image, error)
	Encode(img *Image, params Params) ([]byte, error)
}

// RecodeFunc converts compressed bytes between two encodings without a
// pixel round trip.
type RecodeFunc func(data []byte) ([]byte, error)

// Transcoder routes tiles through registered codecs.
type Transcoder struct {
	codecs  map[string]Codec
	recodes map[recodeKey]RecodeFunc
}

type recodeKey struct{ from, to string }

// NewTranscoder returns a transcoder with the built-in codecs registered.
func NewTranscoder() *Transcoder {
	t := &Transcoder{
		codecs:  make(map[string]Codec),
		recodes: make(map[recodeKey]RecodeFunc),
	}
	t.Register("png", pngCodec{})
	return t
}

// Register installs a codec for an encoding, replacing any previous one.
func (t *Transcoder) Register(encoding string, c Codec) {
	t.codecs[Normalize(encoding)] = c
}

// RegisterRecode installs a direct byte-level recode between two
// encodings, used for reversible transforms such as JPEG to JPEG XL where
// a binding provides one.
func (t *Transcoder) RegisterRecode(from, to string, fn RecodeFunc) {
	t.recodes[recodeKey{Normalize(from), Normalize(to)}] = fn
}

// Transcode converts one tile to params.Encoding and returns the
// destination name (extension rewritten for the target encoding) with the
// encoded bytes. When the source already carries the target encoding the
// bytes pass through untouched. The optional inspector runs on the decoded
// pixels of the same read, so classification never costs a second decode.
func (t *Transcoder) Transcode(ctx context.Context, name string, data []byte, params Params, inspect Inspector) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	srcEnc := Normalize(strings.TrimPrefix(ext(name), "."))
	dstEnc := Normalize(params.Encoding)

	if inspect == nil {
		if srcEnc == dstEnc {
			return name, data, nil
		}
		// Reversible recodes keep the original entropy coding, so they
		// only apply when no quality level was forced.
		if fn, ok := t.recodes[recodeKey{srcEnc, dstEnc}]; ok && params.Level == 0 {
			out, err := fn(data)
			if err != nil {
				return "", nil, fmt.Errorf("recode %s: %w", name, err)
			}
			return DestName(name, dstEnc), out, nil
		}
	}

	decoder, ok := t.codecs[srcEnc]
	if !ok {
		return "", nil, fmt.Errorf("decode %s: %w: %s", name, ErrUnsupported, srcEnc)
	}
	img, err := decoder.Decode(data)
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", name, err)
	}

	if inspect != nil {
		if err := inspect(ctx, name, img); err != nil {
			return "", nil, err
		}
	}

	if srcEnc == dstEnc {
		return name, data, nil
	}

	encoder, ok := t.codecs[dstEnc]
	if !ok {
		return "", nil, fmt.Errorf("encode %s: %w: %s", name, ErrUnsupported, dstEnc)
	}
	out, err := encoder.Encode(img, params)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return DestName(name, dstEnc), out, nil
}

// Supported reports whether an encoding has a registered codec.
func (t *Transcoder) Supported(encoding string) bool {
	_, ok := t.codecs[Normalize(encoding)]
	return ok
}
