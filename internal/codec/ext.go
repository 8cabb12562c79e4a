package codec

import (
	"fmt"
	"strings"
)

// Normalize canonicalizes an encoding name: lowercase, with common
// aliases folded (jpg/jpeg, jpegxl/jxl, tif/tiff).
func Normalize(encoding string) string {
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	switch encoding {
	case "jpg":
		return "jpeg"
	case "jpegxl":
		return "jxl"
	case "tif":
		return "tiff"
	}
	return encoding
}

// ParseCompression validates the extra-compression mode recorded at
// init. Transport compression (gzip/br/zstd) is recognized but not
// implemented by the built-in write path, so it is rejected up front
// rather than silently recorded and ignored.
func ParseCompression(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return "", nil
	case "gzip", "br", "zstd":
		return "", fmt.Errorf("compression mode %q is recognized but not implemented", value)
	default:
		return "", fmt.Errorf("unknown compression mode %q", value)
	}
}

// ExtFor returns the canonical file extension for an encoding, dot
// included.
func ExtFor(encoding string) string {
	return "." + Normalize(encoding)
}

// DestName rewrites a tile name's extension for the target encoding,
// preserving any directory prefix.
func DestName(name, encoding string) string {
	return strings.TrimSuffix(name, ext(name)) + ExtFor(encoding)
}

// Identifier strips the extension from a tile name, yielding the
// encoding-independent identity used to match sources to artifacts.
func Identifier(name string) string {
	return strings.TrimSuffix(name, ext(name))
}

func ext(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 && !strings.ContainsRune(name[idx:], '/') {
		return name[idx:]
	}
	return ""
}
