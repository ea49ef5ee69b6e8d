// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
)

// 10 MB should be plenty for image metadata.
const maxBufSize = 10 * 1024 * 1024

const (
	byteOrderBigEndian    = 0x4d4d // MM
	byteOrderLittleEndian = 0x4949 // II
)

// byteBuffer is a pooled scratch buffer for values read in one go.
type byteBuffer struct {
	b []byte
}

var byteBufferPool = &sync.Pool{
	New: func() any {
		return &byteBuffer{b: make([]byte, 1024)}
	},
}

func getByteBuffer(length int) *byteBuffer {
	b := byteBufferPool.Get().(*byteBuffer)
	if length > cap(b.b) {
		b.b = make([]byte, length)
	}
	b.b = b.b[:length]
	return b
}

func putByteBuffer(b *byteBuffer) {
	b.b = b.b[:0]
	byteBufferPool.Put(b)
}

// byteOrderFromBOM returns the byte order for the two byte TIFF byte order mark.
func byteOrderFromBOM(bom [2]byte) (binary.ByteOrder, error) {
	switch binary.BigEndian.Uint16(bom[:]) {
	case byteOrderBigEndian:
		return binary.BigEndian, nil
	case byteOrderLittleEndian:
		return binary.LittleEndian, nil
	default:
		return nil, newInvalidFormatErrorf("invalid TIFF byte order mark: %q", bom[:])
	}
}

// The decode helpers below work on an already fetched buffer,
// e.g. the 4 byte value field of a TIFF entry.

func decodeInt16(order binary.ByteOrder, b []byte) int16 {
	return int16(order.Uint16(b))
}

func decodeInt32(order binary.ByteOrder, b []byte) int32 {
	return int32(order.Uint32(b))
}

func decodeFloat32(order binary.ByteOrder, b []byte) float32 {
	return math.Float32frombits(order.Uint32(b))
}

func decodeFloat64(order binary.ByteOrder, b []byte) float64 {
	return math.Float64frombits(order.Uint64(b))
}

func newStreamReader(r io.Reader, byteOrder binary.ByteOrder) *streamReader {
	return &streamReader{
		r:         r,
		byteOrder: byteOrder,
	}
}

// streamReader is a wrapper around a Reader that provides methods to read binary data.
// A failed read panics with errStop; use run to get the error back.
// Note that this is not thread safe.
type streamReader struct {
	r         io.Reader
	byteOrder binary.ByteOrder

	buf []byte

	// What we're currently reading, used in error messages.
	context string

	readErr error
}

func (e *streamReader) allocateBuf(length int) {
	if length > cap(e.buf) {
		e.buf = make([]byte, length)
	}
}

// at sets the context used in error messages for the following reads.
func (e *streamReader) at(format string, args ...any) {
	if len(args) == 0 {
		e.context = format
		return
	}
	e.context = fmt.Sprintf(format, args...)
}

func (e *streamReader) read1() uint8 {
	e.readNIntoBuf(1)
	return e.buf[0]
}

func (e *streamReader) read2() uint16 {
	const n = 2
	e.readNIntoBuf(n)
	return e.byteOrder.Uint16(e.buf[:n])
}

// read3 reads a 24-bit unsigned integer.
func (e *streamReader) read3() uint32 {
	e.readNIntoBuf(3)
	var b [4]byte
	if e.byteOrder == binary.BigEndian {
		copy(b[1:], e.buf[:3])
	} else {
		copy(b[:3], e.buf[:3])
	}
	return e.byteOrder.Uint32(b[:])
}

func (e *streamReader) read4() uint32 {
	const n = 4
	e.readNIntoBuf(n)
	return e.byteOrder.Uint32(e.buf[:n])
}

func (e *streamReader) readBytes(b []byte) {
	if _, err := io.ReadFull(e.r, b); err != nil {
		e.stop(err)
	}
}

// readBytesVolatile reads a slice of bytes from the stream
// which is not guaranteed to be valid after the next read.
func (e *streamReader) readBytesVolatile(n int) []byte {
	e.readNIntoBuf(n)
	return e.buf[:n]
}

func (e *streamReader) readNIntoBuf(n int) {
	e.allocateBuf(n)
	if _, err := io.ReadFull(e.r, e.buf[:n]); err != nil {
		e.stop(err)
	}
}

// skip discards exactly n bytes.
func (e *streamReader) skip(n int64) {
	if n <= 0 {
		return
	}
	if s, ok := e.r.(io.Seeker); ok {
		// Seeking past the end is not an error, so make sure
		// there is at least one byte at the new position's end.
		if _, err := s.Seek(n-1, io.SeekCurrent); err != nil {
			e.stop(err)
		}
		e.readNIntoBuf(1)
		return
	}
	copied, err := io.CopyN(io.Discard, e.r, n)
	if err != nil {
		e.stop(err)
	}
	if copied != n {
		e.stop(io.ErrUnexpectedEOF)
	}
}

// skipUntil discards bytes up to and including the first b.
func (e *streamReader) skipUntil(b byte) {
	for {
		if e.read1() == b {
			return
		}
	}
}

func (e *streamReader) stop(err error) {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = &UnexpectedEOFError{Context: e.context}
	}
	e.readErr = err
	panic(errStop)
}

// run calls f and turns a stop into an error.
func (e *streamReader) run(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r != errStop {
				panic(r)
			}
			err = e.readErr
		}
	}()
	return f()
}
