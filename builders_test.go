// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"math/rand"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

// Builders for small in-memory images and containers.

func riffChunk(id string, data []byte) []byte {
	b := make([]byte, 8, 8+len(data)+1)
	copy(b, id)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(data)))
	b = append(b, data...)
	if len(data)%2 == 1 {
		b = append(b, 0)
	}
	return b
}

func riffList(id, typ string, children ...[]byte) []byte {
	data := []byte(typ)
	for _, c := range children {
		data = append(data, c...)
	}
	return riffChunk(id, data)
}

type tiffEntry struct {
	tag   uint16
	typ   EntryType
	count uint32
	data  []byte
}

// buildTIFF lays out the IFDs one after the other, each followed by its referenced data.
// Entry data of at most 4 bytes is stored in the value field.
func buildTIFF(order binary.ByteOrder, ifds ...[]tiffEntry) []byte {
	buf := make([]byte, 8)
	if order == binary.BigEndian {
		copy(buf, "MM")
	} else {
		copy(buf, "II")
	}
	order.PutUint16(buf[2:], tiffMeaningOfLife)
	if len(ifds) > 0 {
		order.PutUint32(buf[4:], 8)
	}

	prevNext := -1
	for _, entries := range ifds {
		off := len(buf)
		if prevNext >= 0 {
			order.PutUint32(buf[prevNext:], uint32(off))
		}

		ifd := make([]byte, 2+len(entries)*tiffEntrySize+4)
		dataOff := off + len(ifd)
		var data []byte

		order.PutUint16(ifd, uint16(len(entries)))
		for i, e := range entries {
			p := ifd[2+i*tiffEntrySize:]
			order.PutUint16(p[0:], e.tag)
			order.PutUint16(p[2:], uint16(e.typ))
			order.PutUint32(p[4:], e.count)
			if len(e.data) <= 4 {
				copy(p[8:12], e.data)
			} else {
				order.PutUint32(p[8:], uint32(dataOff+len(data)))
				data = append(data, e.data...)
				if len(data)%2 == 1 {
					data = append(data, 0)
				}
			}
		}

		prevNext = off + 2 + len(entries)*tiffEntrySize
		buf = append(buf, ifd...)
		buf = append(buf, data...)
	}

	return buf
}

func shortsEntry(order binary.ByteOrder, tag uint16, vals ...uint16) tiffEntry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		order.PutUint16(b[2*i:], v)
	}
	return tiffEntry{tag: tag, typ: TypeShort, count: uint32(len(vals)), data: b}
}

func longsEntry(order binary.ByteOrder, tag uint16, vals ...uint32) tiffEntry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		order.PutUint32(b[4*i:], v)
	}
	return tiffEntry{tag: tag, typ: TypeLong, count: uint32(len(vals)), data: b}
}

func rationalsEntry(order binary.ByteOrder, tag uint16, vals ...uint32) tiffEntry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		order.PutUint32(b[4*i:], v)
	}
	return tiffEntry{tag: tag, typ: TypeRational, count: uint32(len(vals) / 2), data: b}
}

func asciiEntry(tag uint16, s string) tiffEntry {
	return tiffEntry{tag: tag, typ: TypeASCII, count: uint32(len(s)), data: []byte(s)}
}

func pngHeader(width, height uint32, depth uint8, colorType PNGColorType, interlace uint8) []byte {
	b := append([]byte{}, pngSignature...)
	ihdr := make([]byte, 8, 25)
	binary.BigEndian.PutUint32(ihdr, 13)
	copy(ihdr[4:], "IHDR")
	ihdr = binary.BigEndian.AppendUint32(ihdr, width)
	ihdr = binary.BigEndian.AppendUint32(ihdr, height)
	ihdr = append(ihdr, depth, byte(colorType), 0, 0, interlace)
	ihdr = append(ihdr, 0, 0, 0, 0) // CRC, not checked.
	return append(b, ihdr...)
}

// jpegSegment returns a marker with a length prefixed payload.
func jpegSegment(marker byte, payload []byte) []byte {
	b := []byte{0xff, marker}
	b = binary.BigEndian.AppendUint16(b, uint16(len(payload)+2))
	return append(b, payload...)
}

func jpegFrameHeader(marker byte, precision uint8, width, height uint16) []byte {
	payload := []byte{precision}
	payload = binary.BigEndian.AppendUint16(payload, height)
	payload = binary.BigEndian.AppendUint16(payload, width)
	// 3 components with id, sampling factors and quantization table.
	payload = append(payload, 3, 1, 0x22, 0, 2, 0x11, 1, 3, 0x11, 1)
	return jpegSegment(marker, payload)
}

// testGIF is a GIF89a with a 256 color global table, a graphic control
// extension, a NETSCAPE2.0 application extension and one 1280x857 frame.
func testGIF() []byte {
	b := []byte("GIF89a")
	b = binary.LittleEndian.AppendUint16(b, 1280)
	b = binary.LittleEndian.AppendUint16(b, 857)
	// Global color table of 2^(7+1) colors, 8 bits color resolution.
	b = append(b, 0b11110111, 0, 0)
	b = append(b, make([]byte, 256*3)...)

	// Graphic control extension, disposal 1, delay 0.
	b = append(b, 0x21, 0xf9, 4, 0b00000100, 0, 0, 0, 0)

	// Application extension with a loop count sub-block.
	b = append(b, 0x21, 0xff, 11)
	b = append(b, "NETSCAPE2.0"...)
	b = append(b, 3, 1, 0, 0, 0)

	// Image descriptor without local color table.
	b = append(b, 0x2c)
	b = binary.LittleEndian.AppendUint16(b, 0)
	b = binary.LittleEndian.AppendUint16(b, 0)
	b = binary.LittleEndian.AppendUint16(b, 1280)
	b = binary.LittleEndian.AppendUint16(b, 857)
	b = append(b, 0)
	// LZW minimum code size and two data sub-blocks.
	b = append(b, 8, 3, 1, 2, 3, 2, 4, 5, 0)

	return append(b, 0x3b)
}

func vp8KeyFrame(width, height uint16) []byte {
	// Key frame, version 0, shown, first partition length 10.
	tag := uint32(0) | 0<<1 | 1<<4 | 10<<5
	b := []byte{byte(tag), byte(tag >> 8), byte(tag >> 16)}
	b = append(b, vp8KeyFrameMagic[:]...)
	b = binary.LittleEndian.AppendUint16(b, width|1<<14)
	b = binary.LittleEndian.AppendUint16(b, height|2<<14)
	return append(b, make([]byte, 10)...)
}

var errTestRead = errors.New("test read error")

// errReader fails every read and seek.
type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errTestRead
}

func (errReader) Seek(int64, int) (int64, error) {
	return 0, errTestRead
}

var _ io.ReadSeeker = errReader{}

func randomBytes(seed int64, n int) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func cmpFloats[T float64 | float32](x, y T) bool {
	if x == y {
		return true
	}
	delta := math.Abs(float64(x - y))
	mean := math.Abs(float64(x+y)) / 2.0
	return delta/mean < 0.00001
}

var eq = qt.CmpEquals(
	cmp.Comparer(func(x, y Rat[uint32]) bool {
		return x.String() == y.String()
	}),

	cmp.Comparer(func(x, y Rat[int32]) bool {
		return x.String() == y.String()
	}),

	cmp.Comparer(func(x, y float64) bool {
		return cmpFloats(x, y)
	}),

	cmp.Comparer(func(x, y float32) bool {
		return cmpFloats(x, y)
	}),
)
