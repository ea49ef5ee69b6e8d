// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	markerFill = 0xff
	markerSOI  = 0xd8
	markerTEM  = 0x01
)

// CodingProcess is the coding process of a JPEG image.
type CodingProcess uint8

const (
	CodingProcessDCTSequential CodingProcess = iota
	CodingProcessDCTProgressive
	CodingProcessLossless
)

func (p CodingProcess) String() string {
	switch p {
	case CodingProcessDCTSequential:
		return "Sequential DCT"
	case CodingProcessDCTProgressive:
		return "Progressive DCT"
	case CodingProcessLossless:
		return "Lossless"
	default:
		return fmt.Sprintf("CodingProcess(%d)", uint8(p))
	}
}

// EntropyCoding is the entropy coding method of a JPEG image.
type EntropyCoding uint8

const (
	EntropyCodingHuffman EntropyCoding = iota
	EntropyCodingArithmetic
)

func (c EntropyCoding) String() string {
	switch c {
	case EntropyCodingHuffman:
		return "Huffman"
	case EntropyCodingArithmetic:
		return "Arithmetic"
	default:
		return fmt.Sprintf("EntropyCoding(%d)", uint8(c))
	}
}

type sofMarker struct {
	process      CodingProcess
	coding       EntropyCoding
	differential bool
}

// The frame header markers. 0xC4, 0xC8 and 0xCC are not among them.
var sofMarkers = map[byte]sofMarker{
	0xc0: {CodingProcessDCTSequential, EntropyCodingHuffman, false},
	0xc1: {CodingProcessDCTSequential, EntropyCodingHuffman, false},
	0xc2: {CodingProcessDCTProgressive, EntropyCodingHuffman, false},
	0xc3: {CodingProcessLossless, EntropyCodingHuffman, false},
	0xc5: {CodingProcessDCTSequential, EntropyCodingHuffman, true},
	0xc6: {CodingProcessDCTProgressive, EntropyCodingHuffman, true},
	0xc7: {CodingProcessLossless, EntropyCodingHuffman, true},
	0xc9: {CodingProcessDCTSequential, EntropyCodingArithmetic, false},
	0xca: {CodingProcessDCTProgressive, EntropyCodingArithmetic, false},
	0xcb: {CodingProcessLossless, EntropyCodingArithmetic, false},
	0xcd: {CodingProcessDCTSequential, EntropyCodingArithmetic, true},
	0xce: {CodingProcessDCTProgressive, EntropyCodingArithmetic, true},
	0xcf: {CodingProcessLossless, EntropyCodingArithmetic, true},
}

// JPEGMetadata is the metadata read from the frame header of a JPEG image.
type JPEGMetadata struct {
	Width  uint32
	Height uint32

	// SamplePrecision is the number of bits per sample.
	SamplePrecision uint8
	// Components is the number of image components, e.g. 3 for YCbCr.
	Components uint8

	CodingProcess CodingProcess
	EntropyCoding EntropyCoding

	// Baseline is set for baseline DCT images (SOF0) only.
	Baseline bool
	// Differential is set for hierarchical images.
	Differential bool
}

func (m *JPEGMetadata) Format() ImageFormat { return JPEG }
func (m *JPEGMetadata) MIMEType() string { return JPEG.MIMEType() }
func (m *JPEGMetadata) Dimensions() Dimensions { return Dimensions{m.Width, m.Height} }
func (m *JPEGMetadata) isMetadata() {}

// DecodeJPEG reads the metadata of the JPEG image in r.
func DecodeJPEG(r io.Reader) (*JPEGMetadata, error) {
	return decodeJPEG(r, Options{})
}

func decodeJPEG(r io.Reader, opts Options) (*JPEGMetadata, error) {
	dec := &imageDecoderJPEG{
		baseStreamingDecoder: newBaseStreamingDecoder(r, opts, binary.BigEndian),
	}
	if err := dec.run(dec.decode); err != nil {
		return nil, err
	}
	return &dec.md, nil
}

type imageDecoderJPEG struct {
	*baseStreamingDecoder
	md JPEGMetadata
}

func (e *imageDecoderJPEG) decode() error {
	e.findMarker("SOI", func(m byte) bool { return m == markerSOI })

	marker, err := e.skipToFrameHeader()
	if err != nil {
		return err
	}

	e.at("when reading SOF marker payload size")
	size := e.read2()
	// 2 bytes for the length itself, 6 bytes is the minimum header size.
	if size <= 8 {
		return newInvalidFormatErrorf("invalid JPEG frame header size: %d", size)
	}

	e.at("when reading sample precision of the frame")
	e.md.SamplePrecision = e.read1()
	e.at("when reading JPEG frame height")
	e.md.Height = uint32(e.read2())
	e.at("when reading JPEG frame width")
	e.md.Width = uint32(e.read2())
	e.at("when reading number of image components")
	e.md.Components = e.read1()

	if e.md.Height == 0 {
		e.opts.Warnf("JPEG frame height is 0, the height is defined by a DNL marker after the first scan")
	}

	sof := sofMarkers[marker]
	e.md.CodingProcess = sof.process
	e.md.EntropyCoding = sof.coding
	e.md.Differential = sof.differential
	e.md.Baseline = marker == 0xc0

	return nil
}

// findMarker scans for the next marker accepted by match and returns its code.
// Stuffed zero bytes and fill bytes are skipped.
func (e *imageDecoderJPEG) findMarker(name string, match func(byte) bool) byte {
	for {
		e.at("when searching for %s marker", name)
		e.skipUntil(markerFill)

		e.at("when reading marker type")
		m := e.read1()
		for m == markerFill {
			m = e.read1()
		}
		if m == 0 {
			// 0xFF in entropy coded data.
			continue
		}
		if match(m) {
			return m
		}
	}
}

// skipToFrameHeader skips all markers up to the first frame header and returns its code.
func (e *imageDecoderJPEG) skipToFrameHeader() (byte, error) {
	for {
		m := e.findMarker("frame header", func(byte) bool { return true })
		if _, found := sofMarkers[m]; found {
			return m, nil
		}
		if m == markerTEM || (m >= 0xd0 && m <= 0xd9) {
			// Standalone markers, no payload.
			continue
		}

		e.at("when reading payload size of marker 0x%02X", m)
		size := e.read2()
		if size < 2 {
			return 0, newInvalidFormatErrorf("invalid payload size of marker 0x%02X: %d", m, size)
		}
		e.at("when skipping payload of marker 0x%02X", m)
		e.skip(int64(size) - 2)
	}
}
