// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Baseline TIFF tags read from the first IFD.
const (
	tagImageWidth                = 0x0100
	tagImageLength               = 0x0101
	tagBitsPerSample             = 0x0102
	tagCompression               = 0x0103
	tagPhotometricInterpretation = 0x0106
	tagSamplesPerPixel           = 0x0115
)

// TIFFCompression is the compression scheme of a TIFF image.
type TIFFCompression uint16

func (c TIFFCompression) String() string {
	switch c {
	case 1:
		return "None"
	case 2:
		return "CCITT Group 3 1-D Modified Huffman"
	case 3:
		return "CCITT T.4"
	case 4:
		return "CCITT T.6"
	case 5:
		return "LZW"
	case 6, 7:
		return "JPEG"
	case 8, 32946:
		return "Deflate"
	case 32773:
		return "PackBits"
	default:
		return fmt.Sprintf("TIFFCompression(%d)", uint16(c))
	}
}

// TIFFPhotometric is the color space of a TIFF image.
type TIFFPhotometric uint16

func (p TIFFPhotometric) String() string {
	switch p {
	case 0:
		return "WhiteIsZero"
	case 1:
		return "BlackIsZero"
	case 2:
		return "RGB"
	case 3:
		return "Palette"
	case 4:
		return "Transparency mask"
	case 5:
		return "CMYK"
	case 6:
		return "YCbCr"
	case 8:
		return "CIELab"
	default:
		return fmt.Sprintf("TIFFPhotometric(%d)", uint16(p))
	}
}

// TIFFMetadata is the metadata read from the first IFD of a TIFF image.
type TIFFMetadata struct {
	ByteOrder binary.ByteOrder

	Width  uint32
	Height uint32

	// BitsPerSample has one value per sample, [1] if not set.
	BitsPerSample []uint16
	// Compression is 1 (none) if not set.
	Compression TIFFCompression
	// Photometric is only valid if HasPhotometric is set.
	Photometric    TIFFPhotometric
	HasPhotometric bool
	// SamplesPerPixel is 1 if not set.
	SamplesPerPixel uint16

	// NumIFDs is the number of IFDs, usually one per page.
	NumIFDs int
}

func (m *TIFFMetadata) Format() ImageFormat { return TIFF }
func (m *TIFFMetadata) MIMEType() string { return TIFF.MIMEType() }
func (m *TIFFMetadata) Dimensions() Dimensions { return Dimensions{m.Width, m.Height} }
func (m *TIFFMetadata) isMetadata() {}

// DecodeTIFF reads the metadata of the TIFF image in r.
func DecodeTIFF(r io.ReadSeeker) (*TIFFMetadata, error) {
	opts := Options{}
	opts.setDefaults()
	return decodeTIFF(r, opts)
}

func decodeTIFF(r io.ReadSeeker, opts Options) (*TIFFMetadata, error) {
	tr := NewTIFFReader(r)
	tr.warnf = opts.Warnf
	tr.limitNumIFDs = opts.LimitNumIFDs

	ifds, err := tr.IFDs()
	if err != nil {
		return nil, err
	}

	md := &TIFFMetadata{
		ByteOrder:       ifds.ByteOrder(),
		BitsPerSample:   []uint16{1},
		Compression:     1,
		SamplesPerPixel: 1,
	}

	var hasWidth, hasHeight bool
	for ifd, err := range ifds.All() {
		if err != nil {
			return nil, err
		}
		md.NumIFDs++
		if ifd.Index() > 0 {
			continue
		}

		for entry, err := range ifd.All() {
			if err != nil {
				return nil, err
			}
			switch entry.Tag() {
			case tagImageWidth:
				md.Width, err = entry.Uint(0)
				hasWidth = true
			case tagImageLength:
				md.Height, err = entry.Uint(0)
				hasHeight = true
			case tagBitsPerSample:
				md.BitsPerSample, err = shortValues(entry)
			case tagCompression:
				var v uint32
				v, err = entry.Uint(0)
				md.Compression = TIFFCompression(v)
			case tagPhotometricInterpretation:
				var v uint32
				v, err = entry.Uint(0)
				md.Photometric = TIFFPhotometric(v)
				md.HasPhotometric = true
			case tagSamplesPerPixel:
				var v uint32
				v, err = entry.Uint(0)
				md.SamplesPerPixel = uint16(v)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if md.NumIFDs == 0 {
		return nil, newInvalidFormatErrorf("TIFF file has no IFDs")
	}
	if !hasWidth || !hasHeight {
		return nil, newInvalidFormatErrorf("TIFF image width or length is missing")
	}

	return md, nil
}

func shortValues(e *Entry) ([]uint16, error) {
	vals, ok, err := AllValues[uint16](e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newInvalidFormatErrorf("%s: expected SHORT values", e)
	}
	return vals, nil
}
