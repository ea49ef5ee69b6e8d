// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding/binary"
	"fmt"
	"io"
)

var (
	fccWEBP = ChunkID{'W', 'E', 'B', 'P'}
	fccALPH = ChunkID{'A', 'L', 'P', 'H'}
	fccVP8  = ChunkID{'V', 'P', '8', ' '}
	fccVP8L = ChunkID{'V', 'P', '8', 'L'}
	fccVP8X = ChunkID{'V', 'P', '8', 'X'}
)

const (
	vp8lSignature = 0x2f

	vp8xFlagAnimation = 0x02
	vp8xFlagXMP       = 0x04
	vp8xFlagEXIF      = 0x08
	vp8xFlagAlpha     = 0x10
	vp8xFlagICC       = 0x20
)

var vp8KeyFrameMagic = [3]byte{0x9d, 0x01, 0x2a}

// WebPCodec is the bitstream variant of a WebP image.
type WebPCodec uint8

const (
	// WebPLossy is a simple lossy image, a VP8 chunk.
	WebPLossy WebPCodec = iota
	// WebPLossless is a simple lossless image, a VP8L chunk.
	WebPLossless
	// WebPExtended is an image in the extended format, led by a VP8X chunk.
	WebPExtended
)

func (c WebPCodec) String() string {
	switch c {
	case WebPLossy:
		return "VP8"
	case WebPLossless:
		return "VP8L"
	case WebPExtended:
		return "VP8X"
	default:
		return fmt.Sprintf("WebPCodec(%d)", uint8(c))
	}
}

// VP8Metadata is the frame header of a lossy WebP image.
type VP8Metadata struct {
	VersionNumber     uint8
	ShowFrame         bool
	FirstPartitionLen uint32

	// The fields below are only set for key frames.
	KeyFrame bool
	Width    uint16
	Height   uint16
	XScale   uint8
	YScale   uint8
}

// VP8LMetadata is the header of a lossless WebP image.
type VP8LMetadata struct {
	Width       uint32
	Height      uint32
	AlphaIsUsed bool
	Version     uint8
}

// VP8XMetadata is the header of an extended WebP image.
type VP8XMetadata struct {
	ICC       bool
	Alpha     bool
	EXIF      bool
	XMP       bool
	Animation bool

	CanvasWidth  uint32
	CanvasHeight uint32
}

// WebPMetadata is the metadata of a WebP image.
// Exactly one of VP8, VP8L and VP8X is set, as given by Codec.
type WebPMetadata struct {
	Codec WebPCodec

	VP8  *VP8Metadata
	VP8L *VP8LMetadata
	VP8X *VP8XMetadata
}

func (m *WebPMetadata) Format() ImageFormat { return WebP }
func (m *WebPMetadata) MIMEType() string { return WebP.MIMEType() }
func (m *WebPMetadata) isMetadata() {}

// Dimensions returns the image size.
// It is zero for a lossy image which does not start with a key frame.
func (m *WebPMetadata) Dimensions() Dimensions {
	switch m.Codec {
	case WebPLossy:
		return Dimensions{uint32(m.VP8.Width), uint32(m.VP8.Height)}
	case WebPLossless:
		return Dimensions{m.VP8L.Width, m.VP8L.Height}
	default:
		return Dimensions{m.VP8X.CanvasWidth, m.VP8X.CanvasHeight}
	}
}

// DecodeWebP reads the metadata of the WebP image in r.
func DecodeWebP(r io.Reader) (*WebPMetadata, error) {
	return decodeWebP(r, Options{})
}

func decodeWebP(r io.Reader, opts Options) (*WebPMetadata, error) {
	root, err := NewRIFFReader(r).Root()
	if err != nil {
		return nil, err
	}
	list, _, err := root.IntoList()
	if err != nil {
		return nil, err
	}
	if list.Type() != fccWEBP {
		return nil, newInvalidFormatErrorf("invalid WebP signature: %q", list.Type().String())
	}

	for {
		chunk, err := list.Next()
		if err == io.EOF {
			return nil, newUnexpectedEOFErrorf("when reading first WebP chunk")
		}
		if err != nil {
			return nil, err
		}

		dec := &imageDecoderWebP{
			baseStreamingDecoder: newBaseStreamingDecoder(chunk.Contents(), opts, binary.LittleEndian),
			chunk:                chunk,
		}

		switch chunk.ID() {
		case fccVP8:
			dec.md.Codec = WebPLossy
			err = dec.run(dec.decodeVP8)
		case fccVP8L:
			dec.md.Codec = WebPLossless
			err = dec.run(dec.decodeVP8L)
		case fccVP8X:
			dec.md.Codec = WebPExtended
			err = dec.run(dec.decodeVP8X)
		case fccALPH:
			// Skipped by the next call to Next.
			continue
		default:
			return nil, newInvalidFormatErrorf("invalid WebP chunk id: %q", chunk.ID().String())
		}
		if err != nil {
			return nil, err
		}
		return &dec.md, nil
	}
}

type imageDecoderWebP struct {
	*baseStreamingDecoder
	chunk *Chunk
	md    WebPMetadata
}

func (e *imageDecoderWebP) decodeVP8() error {
	// The 3 byte frame tag, least significant bit first:
	//
	//	f    frame type, 0 is key frame
	//	vvv  version number
	//	s    show frame
	//	x*19 size of the first data partition
	e.at("when reading VP8 frame header")
	var tag [3]byte
	e.readBytes(tag[:])

	md := &VP8Metadata{
		KeyFrame:          tag[0]&1 == 0,
		VersionNumber:     (tag[0] >> 1) & 7,
		ShowFrame:         (tag[0]>>4)&1 == 1,
		FirstPartitionLen: uint32(tag[0]>>5) | uint32(tag[1])<<3 | uint32(tag[2])<<11,
	}

	if md.KeyFrame {
		e.at("when reading VP8 key frame header")
		var hdr [7]byte
		e.readBytes(hdr[:])
		if [3]byte(hdr[:3]) != vp8KeyFrameMagic {
			return newInvalidFormatErrorf("VP8 key frame magic code is invalid: % x", hdr[:3])
		}
		// 14 bits of size and 2 bits of scale, for each dimension.
		md.Width = binary.LittleEndian.Uint16(hdr[3:5]) & 0x3fff
		md.XScale = hdr[4] >> 6
		md.Height = binary.LittleEndian.Uint16(hdr[5:7]) & 0x3fff
		md.YScale = hdr[6] >> 6
	}

	e.md.VP8 = md
	return nil
}

func (e *imageDecoderWebP) decodeVP8L() error {
	e.at("when reading VP8L signature")
	if sig := e.read1(); sig != vp8lSignature {
		return newInvalidFormatErrorf("invalid VP8L signature: 0x%02x", sig)
	}

	e.at("when reading VP8L header")
	bits := e.read4()

	md := &VP8LMetadata{
		Width:       bits&0x3fff + 1,
		Height:      (bits>>14)&0x3fff + 1,
		AlphaIsUsed: (bits>>28)&1 == 1,
		Version:     uint8(bits >> 29),
	}
	if md.Version != 0 {
		return newInvalidFormatErrorf("invalid VP8L version: %d", md.Version)
	}

	e.md.VP8L = md
	return nil
}

func (e *imageDecoderWebP) decodeVP8X() error {
	if e.chunk.Len() < 10 {
		return newInvalidFormatErrorf("invalid VP8X chunk length: %d", e.chunk.Len())
	}

	e.at("when reading VP8X flags")
	flags := e.read1()
	e.at("when reading VP8X reserved bytes")
	e.skip(3)

	md := &VP8XMetadata{
		ICC:       flags&vp8xFlagICC != 0,
		Alpha:     flags&vp8xFlagAlpha != 0,
		EXIF:      flags&vp8xFlagEXIF != 0,
		XMP:       flags&vp8xFlagXMP != 0,
		Animation: flags&vp8xFlagAnimation != 0,
	}

	e.at("when reading VP8X canvas width")
	md.CanvasWidth = e.read3() + 1
	e.at("when reading VP8X canvas height")
	md.CanvasHeight = e.read3() + 1

	e.md.VP8X = md
	return nil
}
