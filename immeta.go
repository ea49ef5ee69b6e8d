// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package immeta reads structural metadata (dimensions, color model,
// compression parameters, frame and block structure) from PNG, GIF, JPEG,
// WebP and TIFF images without decoding any pixel data.
//
// The container readers used to do this, RIFFReader and TIFFReader,
// are exported and can be used on their own.
package immeta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// ImageFormatAuto signals that the image format should be detected automatically.
	ImageFormatAuto ImageFormat = iota
	// JPEG is the JPEG image format.
	JPEG
	// TIFF is the TIFF image format.
	TIFF
	// PNG is the PNG image format.
	PNG
	// WebP is the WebP image format.
	WebP
	// GIF is the GIF image format.
	GIF
)

// ImageFormat is the image format.
//
//go:generate stringer -type=ImageFormat
type ImageFormat int

// MIMEType returns the MIME type of the format, or an empty string for ImageFormatAuto.
func (f ImageFormat) MIMEType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case TIFF:
		return "image/tiff"
	case PNG:
		return "image/png"
	case WebP:
		return "image/webp"
	case GIF:
		return "image/gif"
	default:
		return ""
	}
}

// Formats are tried in this order when the format is detected automatically.
// JPEG must be last: it has no fixed signature, so a scan for its markers
// could succeed on data in other formats.
var sniffOrder = []ImageFormat{PNG, GIF, WebP, TIFF, JPEG}

// Dimensions holds the width and height of an image in pixels.
type Dimensions struct {
	Width  uint32
	Height uint32
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Metadata is the metadata of one image.
// It is implemented by *PNGMetadata, *GIFMetadata, *JPEGMetadata,
// *WebPMetadata and *TIFFMetadata only; use a type switch or As
// to get to the format specific fields.
type Metadata interface {
	// Format returns the image format.
	Format() ImageFormat
	// Dimensions returns the image size.
	Dimensions() Dimensions
	// MIMEType returns the MIME type of the image format.
	MIMEType() string

	isMetadata()
}

// As returns m as T if m holds metadata of that type.
func As[T Metadata](m Metadata) (T, bool) {
	t, ok := m.(T)
	return t, ok
}

// Options contains the options for the Decode function.
type Options struct {
	// The Reader (typically a *os.File) to read image metadata from.
	R io.ReadSeeker

	// The image format in R.
	// If not set, the format is detected by trying PNG, GIF, WebP, TIFF and JPEG
	// in that order, rewinding R to its initial position before each attempt.
	ImageFormat ImageFormat

	// Warnf will be called for each warning.
	Warnf func(string, ...any)

	// Timeout is the maximum time the decoder will spend on reading metadata.
	// Mostly useful for testing.
	// If set to 0, the decoder will not time out.
	Timeout time.Duration

	// LimitNumIFDs is the maximum number of TIFF IFDs to read.
	// Default value is 1000.
	LimitNumIFDs uint32

	// LimitNumBlocks is the maximum number of GIF blocks to read.
	// Default value is 100000.
	LimitNumBlocks uint32
}

func (opts *Options) setDefaults() {
	const (
		defaultLimitNumIFDs   = 1000
		defaultLimitNumBlocks = 100000
	)

	if opts.Warnf == nil {
		opts.Warnf = func(string, ...any) {}
	}
	if opts.LimitNumIFDs == 0 {
		opts.LimitNumIFDs = defaultLimitNumIFDs
	}
	if opts.LimitNumBlocks == 0 {
		opts.LimitNumBlocks = defaultLimitNumBlocks
	}
}

// Load reads the metadata of the image in r, detecting its format.
func Load(r io.ReadSeeker) (Metadata, error) {
	return Decode(Options{R: r})
}

// LoadFile reads the metadata of the image in the named file, detecting its format.
func LoadFile(filename string) (Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// LoadBytes reads the metadata of the image in b, detecting its format.
func LoadBytes(b []byte) (Metadata, error) {
	return Load(bytes.NewReader(b))
}

// Decode reads the image metadata as configured by opts.
// Either the complete metadata for one format is returned or an error.
func Decode(opts Options) (md Metadata, err error) {
	errFromRecover := func(r any) (err2 error) {
		if r == nil {
			return nil
		}
		if errp, ok := r.(error); ok {
			err2 = errp
		} else {
			err2 = fmt.Errorf("unknown panic: %v", r)
		}
		return
	}

	defer func() {
		err2 := errFromRecover(recover())
		if err == nil {
			err = err2
		}
		if err != nil {
			md = nil
		}
	}()

	if opts.R == nil {
		return nil, fmt.Errorf("no reader provided")
	}
	if opts.ImageFormat < ImageFormatAuto || opts.ImageFormat > GIF {
		return nil, fmt.Errorf("unsupported image format")
	}

	opts.setDefaults()

	type result struct {
		md  Metadata
		err error
	}

	decode := func() chan result {
		resc := make(chan result, 1)
		go func() {
			defer func() {
				if err2 := errFromRecover(recover()); err2 != nil {
					resc <- result{err: err2}
				}
			}()
			md, err := decodeFormat(opts)
			resc <- result{md, err}
		}()
		return resc
	}

	if opts.Timeout > 0 {
		select {
		case <-time.After(opts.Timeout):
			return nil, fmt.Errorf("timed out after %s", opts.Timeout)
		case res := <-decode():
			return res.md, res.err
		}
	}

	return decodeFormat(opts)
}

func decodeFormat(opts Options) (Metadata, error) {
	if opts.ImageFormat != ImageFormatAuto {
		return decodeOne(opts.ImageFormat, opts.R, opts)
	}

	start, err := opts.R.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	for _, format := range sniffOrder {
		if _, err := opts.R.Seek(start, io.SeekStart); err != nil {
			return nil, err
		}
		md, err := decodeOne(format, opts.R, opts)
		if err == nil {
			return md, nil
		}
		if IsIO(err) {
			return nil, err
		}
	}

	return nil, newInvalidFormatErrorf("unknown or unsupported format")
}

func decodeOne(format ImageFormat, r io.ReadSeeker, opts Options) (Metadata, error) {
	switch format {
	case PNG:
		return decodePNG(r, opts)
	case GIF:
		return decodeGIF(r, opts)
	case JPEG:
		return decodeJPEG(r, opts)
	case WebP:
		return decodeWebP(r, opts)
	case TIFF:
		return decodeTIFF(r, opts)
	default:
		return nil, fmt.Errorf("unsupported image format")
	}
}

type baseStreamingDecoder struct {
	*streamReader
	opts Options
}

func newBaseStreamingDecoder(r io.Reader, opts Options, byteOrder binary.ByteOrder) *baseStreamingDecoder {
	opts.setDefaults()
	return &baseStreamingDecoder{
		streamReader: newStreamReader(r, byteOrder),
		opts:         opts,
	}
}
