// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
)

// EntryType is the data type of a TIFF directory entry.
// Codes outside of the 12 types defined by TIFF 6.0 are kept as is,
// see Known.
//
//go:generate stringer -type=EntryType -trimprefix=Type
type EntryType uint16

const (
	TypeByte      EntryType = 1
	TypeASCII     EntryType = 2
	TypeShort     EntryType = 3
	TypeLong      EntryType = 4
	TypeRational  EntryType = 5
	TypeSByte     EntryType = 6
	TypeUndefined EntryType = 7
	TypeSShort    EntryType = 8
	TypeSLong     EntryType = 9
	TypeSRational EntryType = 10
	TypeFloat     EntryType = 11
	TypeDouble    EntryType = 12
)

// Undefined is the value type of TypeUndefined entries: an 8-bit byte
// whose meaning depends on the field definition.
type Undefined uint8

// Known reports whether t is one of the 12 defined TIFF types.
func (t EntryType) Known() bool {
	return t >= TypeByte && t <= TypeDouble
}

// Size returns the size in bytes of one value of type t,
// or 0 if t is not known.
func (t EntryType) Size() uint32 {
	if !t.Known() {
		return 0
	}
	return entryTypes[t].size
}

// entryTypeSpec describes how to decode one value of a TIFF type.
type entryTypeSpec struct {
	size uint32

	// decode decodes one value from the start of b, which is either
	// the embedded value field or a buffer of referenced data.
	// It returns the value and the number of bytes it occupied.
	decode func(order binary.ByteOrder, b []byte) (any, int)

	// read reads one value from a stream holding at most max bytes of entry data.
	read func(r io.Reader, order binary.ByteOrder, max uint32) (any, int, error)
}

var entryTypes = [...]entryTypeSpec{
	TypeByte: fixedType(1, func(order binary.ByteOrder, b []byte) any {
		return b[0]
	}),
	TypeASCII: {
		size:   1,
		decode: decodeASCII,
		read:   readASCII,
	},
	TypeShort: fixedType(2, func(order binary.ByteOrder, b []byte) any {
		return order.Uint16(b)
	}),
	TypeLong: fixedType(4, func(order binary.ByteOrder, b []byte) any {
		return order.Uint32(b)
	}),
	TypeRational: fixedType(8, func(order binary.ByteOrder, b []byte) any {
		return newRatRaw(order.Uint32(b), order.Uint32(b[4:]))
	}),
	TypeSByte: fixedType(1, func(order binary.ByteOrder, b []byte) any {
		return int8(b[0])
	}),
	TypeUndefined: fixedType(1, func(order binary.ByteOrder, b []byte) any {
		return Undefined(b[0])
	}),
	TypeSShort: fixedType(2, func(order binary.ByteOrder, b []byte) any {
		return decodeInt16(order, b)
	}),
	TypeSLong: fixedType(4, func(order binary.ByteOrder, b []byte) any {
		return decodeInt32(order, b)
	}),
	TypeSRational: fixedType(8, func(order binary.ByteOrder, b []byte) any {
		return newRatRaw(decodeInt32(order, b), decodeInt32(order, b[4:]))
	}),
	TypeFloat: fixedType(4, func(order binary.ByteOrder, b []byte) any {
		return decodeFloat32(order, b)
	}),
	TypeDouble: fixedType(8, func(order binary.ByteOrder, b []byte) any {
		return decodeFloat64(order, b)
	}),
}

// entryTypeFor returns the entry type whose values are represented by T.
func entryTypeFor[T any]() (EntryType, bool) {
	switch any((*T)(nil)).(type) {
	case *uint8:
		return TypeByte, true
	case *string:
		return TypeASCII, true
	case *uint16:
		return TypeShort, true
	case *uint32:
		return TypeLong, true
	case *Rat[uint32]:
		return TypeRational, true
	case *int8:
		return TypeSByte, true
	case *Undefined:
		return TypeUndefined, true
	case *int16:
		return TypeSShort, true
	case *int32:
		return TypeSLong, true
	case *Rat[int32]:
		return TypeSRational, true
	case *float32:
		return TypeFloat, true
	case *float64:
		return TypeDouble, true
	default:
		return 0, false
	}
}

func fixedType(size int, decode func(order binary.ByteOrder, b []byte) any) entryTypeSpec {
	return entryTypeSpec{
		size: uint32(size),
		decode: func(order binary.ByteOrder, b []byte) (any, int) {
			return decode(order, b[:size]), size
		},
		read: func(r io.Reader, order binary.ByteOrder, max uint32) (any, int, error) {
			var buf [8]byte
			if _, err := io.ReadFull(r, buf[:size]); err != nil {
				return nil, 0, err
			}
			return decode(order, buf[:size]), size, nil
		},
	}
}

// decodeASCII decodes one NUL terminated string from b.
// The last string in b may lack the terminator.
// The bytes are returned as stored, without any charset conversion.
func decodeASCII(order binary.ByteOrder, b []byte) (any, int) {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i]), i + 1
	}
	return string(b), len(b)
}

func readASCII(r io.Reader, order binary.ByteOrder, max uint32) (any, int, error) {
	br := bufio.NewReader(io.LimitReader(r, int64(max)))
	b, err := br.ReadBytes(0)
	if err == io.EOF {
		if uint32(len(b)) < max {
			return nil, 0, io.ErrUnexpectedEOF
		}
		// Unterminated last string.
		return string(b), len(b), nil
	}
	if err != nil {
		return nil, 0, err
	}
	return string(b[:len(b)-1]), len(b), nil
}
