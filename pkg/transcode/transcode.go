// Package transcode re-encodes single page images into a target codec.
// Transcode is a pure function over its inputs and is safe to call from
// any number of goroutines at once.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"runtime"

	_ "image/gif"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Codec is a target image codec.
type Codec string

const (
	CodecWebP Codec = "webp"
	CodecAvif Codec = "avif"
	CodecJpeg Codec = "jpeg"
	CodecPng  Codec = "png"
)

// ParseCodec resolves a user-supplied codec name.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "webp":
		return CodecWebP, nil
	case "avif":
		return CodecAvif, nil
	case "jpeg", "jpg":
		return CodecJpeg, nil
	case "png":
		return CodecPng, nil
	}
	return "", fmt.Errorf("unsupported image codec: %s", s)
}

// Ext returns the file extension for pages encoded with the codec,
// without the dot.
func (c Codec) Ext() string {
	if c == CodecJpeg {
		return "jpg"
	}
	return string(c)
}

var (
	// ErrDecode is returned for malformed or truncated source images.
	ErrDecode = errors.New("image decode failed")

	// ErrEncode is returned when the target encoder rejects the image.
	ErrEncode = errors.New("image encode failed")

	// ErrUnsupportedColorSpace is returned when a lossless re-encode
	// would silently truncate the source color depth.
	ErrUnsupportedColorSpace = errors.New("unsupported color space")
)

// Options configure the target codec. Built once at pipeline start and
// threaded through unchanged.
type Options struct {
	Codec    Codec
	Quality  int  // 1..100
	Lossless bool // webp only
	Speed    int  // avif only, 1..10
	// MaxDim, when non-zero, scales pages down so neither dimension
	// exceeds it. Aspect ratio is preserved; pages are never upscaled.
	MaxDim int
}

// DefaultOptions mirror the tool's defaults: lossy webp at quality 80.
func DefaultOptions() Options {
	return Options{Codec: CodecWebP, Quality: 80, Speed: 3}
}

// Transcode decodes data and re-encodes it with the target codec. The
// second return value reports that the bytes were passed through
// unchanged: sources already in the target codec (or already in a
// modern codec the target belongs to) are not re-encoded, avoiding
// generation loss.
func Transcode(data []byte, opts Options) ([]byte, bool, error) {
	if Passthrough(data, opts) {
		return data, true, nil
	}
	img, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	out, err := Encode(img, opts)
	if err != nil {
		return nil, false, err
	}
	return out, false, nil
}

// Passthrough reports whether data should be copied to the destination
// unchanged: it is already in the target codec, or already in a modern
// codec that re-encoding would only degrade.
func Passthrough(data []byte, opts Options) bool {
	src := sniffCodec(data)
	if src == "" {
		return false
	}
	return src == opts.Codec || src == CodecWebP || src == CodecAvif
}

// Decode parses source image bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Encode re-encodes img with the target codec, scaling down first when
// MaxDim is configured.
func Encode(img image.Image, opts Options) ([]byte, error) {
	if opts.Lossless && isDeepColor(img) {
		return nil, fmt.Errorf("%w: 16-bit source cannot round-trip lossless", ErrUnsupportedColorSpace)
	}
	if opts.MaxDim > 0 {
		img = scaleDown(img, opts.MaxDim)
	}
	return encode(img, opts)
}

func encode(img image.Image, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch opts.Codec {
	case CodecWebP:
		err = webp.Encode(&buf, img, webp.Options{
			Quality:  opts.Quality,
			Lossless: opts.Lossless,
		})
	case CodecAvif:
		err = avif.Encode(&buf, img, avif.Options{
			Quality: opts.Quality,
			Speed:   opts.Speed,
		})
	case CodecJpeg:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality})
	case CodecPng:
		err = png.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", ErrEncode, opts.Codec)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w: %v", opts.Codec, ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// sniffCodec identifies the source codec by signature. Returns "" for
// formats outside the transcoding set.
func sniffCodec(data []byte) Codec {
	switch mime := mimetype.Detect(data); {
	case mime.Is("image/webp"):
		return CodecWebP
	case mime.Is("image/avif"):
		return CodecAvif
	case mime.Is("image/jpeg"):
		return CodecJpeg
	case mime.Is("image/png"):
		return CodecPng
	}
	return ""
}

func isDeepColor(img image.Image) bool {
	switch img.ColorModel() {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model:
		return true
	}
	return false
}

// Concurrency returns the default worker count for transcode jobs.
func Concurrency() int { return runtime.NumCPU() }
