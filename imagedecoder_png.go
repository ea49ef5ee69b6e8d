// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

var (
	pngSignature  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	pngIHDRMarker = []byte("IHDR")
)

// PNGColorType is the color type of a PNG image.
type PNGColorType uint8

const (
	PNGGrayscale      PNGColorType = 0
	PNGRGB            PNGColorType = 2
	PNGIndexed        PNGColorType = 3
	PNGGrayscaleAlpha PNGColorType = 4
	PNGRGBA           PNGColorType = 6
)

func (t PNGColorType) String() string {
	switch t {
	case PNGGrayscale:
		return "Grayscale"
	case PNGRGB:
		return "RGB"
	case PNGIndexed:
		return "Indexed"
	case PNGGrayscaleAlpha:
		return "Grayscale with alpha"
	case PNGRGBA:
		return "RGB with alpha"
	default:
		return fmt.Sprintf("PNGColorType(%d)", uint8(t))
	}
}

// channels returns the number of samples per pixel.
func (t PNGColorType) channels() uint8 {
	switch t {
	case PNGRGB:
		return 3
	case PNGGrayscaleAlpha:
		return 2
	case PNGRGBA:
		return 4
	default:
		return 1
	}
}

// Allowed bit depths per color type.
var pngBitDepths = map[PNGColorType][]uint8{
	PNGGrayscale:      {1, 2, 4, 8, 16},
	PNGRGB:            {8, 16},
	PNGIndexed:        {1, 2, 4, 8},
	PNGGrayscaleAlpha: {8, 16},
	PNGRGBA:           {8, 16},
}

// PNGCompressionMethod is the compression method of a PNG image.
// Only deflate is defined.
type PNGCompressionMethod uint8

const PNGCompressionDeflate PNGCompressionMethod = 0

func (m PNGCompressionMethod) String() string {
	if m == PNGCompressionDeflate {
		return "DEFLATE"
	}
	return fmt.Sprintf("PNGCompressionMethod(%d)", uint8(m))
}

// PNGFilterMethod is the filter method of a PNG image.
// Only adaptive filtering is defined.
type PNGFilterMethod uint8

const PNGFilterAdaptive PNGFilterMethod = 0

func (m PNGFilterMethod) String() string {
	if m == PNGFilterAdaptive {
		return "Adaptive"
	}
	return fmt.Sprintf("PNGFilterMethod(%d)", uint8(m))
}

// PNGInterlaceMethod is the interlace method of a PNG image.
type PNGInterlaceMethod uint8

const (
	PNGInterlaceNone  PNGInterlaceMethod = 0
	PNGInterlaceAdam7 PNGInterlaceMethod = 1
)

func (m PNGInterlaceMethod) String() string {
	switch m {
	case PNGInterlaceNone:
		return "Disabled"
	case PNGInterlaceAdam7:
		return "Adam7"
	default:
		return fmt.Sprintf("PNGInterlaceMethod(%d)", uint8(m))
	}
}

// PNGMetadata is the metadata read from the IHDR chunk of a PNG image.
type PNGMetadata struct {
	Width  uint32
	Height uint32

	ColorType PNGColorType
	// BitDepth is the number of bits per sample or palette index.
	BitDepth uint8
	// ColorDepth is the number of bits per pixel.
	ColorDepth uint8

	CompressionMethod PNGCompressionMethod
	FilterMethod      PNGFilterMethod
	InterlaceMethod   PNGInterlaceMethod
}

func (m *PNGMetadata) Format() ImageFormat { return PNG }
func (m *PNGMetadata) MIMEType() string { return PNG.MIMEType() }
func (m *PNGMetadata) Dimensions() Dimensions { return Dimensions{m.Width, m.Height} }
func (m *PNGMetadata) isMetadata() {}

// DecodePNG reads the metadata of the PNG image in r.
func DecodePNG(r io.Reader) (*PNGMetadata, error) {
	return decodePNG(r, Options{})
}

func decodePNG(r io.Reader, opts Options) (*PNGMetadata, error) {
	dec := &imageDecoderPNG{
		baseStreamingDecoder: newBaseStreamingDecoder(r, opts, binary.BigEndian),
	}
	if err := dec.run(dec.decode); err != nil {
		return nil, err
	}
	return &dec.md, nil
}

type imageDecoderPNG struct {
	*baseStreamingDecoder
	md PNGMetadata
}

func (e *imageDecoderPNG) decode() error {
	e.at("when reading PNG signature")
	if !bytes.Equal(e.readBytesVolatile(len(pngSignature)), pngSignature) {
		return newInvalidFormatErrorf("invalid PNG signature")
	}

	// IHDR must be the first chunk.
	e.at("when reading chunk length")
	length := e.read4()
	e.at("when reading chunk type")
	if typ := e.readBytesVolatile(4); !bytes.Equal(typ, pngIHDRMarker) {
		return newInvalidFormatErrorf("invalid PNG header: expected IHDR chunk, got %q", typ)
	}
	if length != 13 {
		return newInvalidFormatErrorf("invalid PNG header: IHDR chunk length is %d, expected 13", length)
	}

	e.at("when reading width")
	e.md.Width = e.read4()
	e.at("when reading height")
	e.md.Height = e.read4()

	e.at("when reading bit depth")
	e.md.BitDepth = e.read1()
	e.at("when reading color type")
	e.md.ColorType = PNGColorType(e.read1())

	depths, found := pngBitDepths[e.md.ColorType]
	if !found {
		return newInvalidFormatErrorf("invalid color type: %d", uint8(e.md.ColorType))
	}
	if !bytes.Contains(depths, []byte{e.md.BitDepth}) {
		return newInvalidFormatErrorf("invalid bit depth %d for color type %s", e.md.BitDepth, e.md.ColorType)
	}
	e.md.ColorDepth = e.md.BitDepth * e.md.ColorType.channels()

	e.at("when reading compression method")
	e.md.CompressionMethod = PNGCompressionMethod(e.read1())
	if e.md.CompressionMethod != PNGCompressionDeflate {
		return newInvalidFormatErrorf("invalid compression method: %d", uint8(e.md.CompressionMethod))
	}

	e.at("when reading filter method")
	e.md.FilterMethod = PNGFilterMethod(e.read1())
	if e.md.FilterMethod != PNGFilterAdaptive {
		return newInvalidFormatErrorf("invalid filter method: %d", uint8(e.md.FilterMethod))
	}

	e.at("when reading interlace method")
	e.md.InterlaceMethod = PNGInterlaceMethod(e.read1())
	if e.md.InterlaceMethod > PNGInterlaceAdam7 {
		return newInvalidFormatErrorf("invalid interlace method: %d", uint8(e.md.InterlaceMethod))
	}

	return nil
}
