// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"
)

const (
	tiffMeaningOfLife = 42

	// A directory entry is represented in 12 bytes:
	//   - 2 bytes for the tag ID
	//   - 2 bytes for the data type
	//   - 4 bytes for the number of values of the specified type
	//   - 4 bytes for the value itself, if it fits, otherwise for an offset to
	//     another location where the data may be found.
	tiffEntrySize = 12
)

// TIFFReader reads the image file directories of a TIFF stream.
// TIFF needs random access, so the source must be seekable.
type TIFFReader struct {
	r io.ReadSeeker

	warnf        func(string, ...any)
	limitNumIFDs uint32
}

// NewTIFFReader returns a new TIFFReader reading from r.
// The TIFF header is expected at the current position of r;
// all offsets in the file are relative to it.
func NewTIFFReader(r io.ReadSeeker) *TIFFReader {
	return &TIFFReader{
		r:     r,
		warnf: func(string, ...any) {},
	}
}

// IFDs reads the TIFF header and returns a lazy iterator over the
// image file directories.
func (t *TIFFReader) IFDs() (*IFDs, error) {
	base, err := t.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	var hdr [8]byte
	if _, err := io.ReadFull(t.r, hdr[:2]); err != nil {
		return nil, ifEOF(err, "when reading byte order mark")
	}
	byteOrder, err := byteOrderFromBOM([2]byte{hdr[0], hdr[1]})
	if err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(t.r, hdr[2:4]); err != nil {
		return nil, ifEOF(err, "when reading magic number")
	}
	if magic := byteOrder.Uint16(hdr[2:4]); magic != tiffMeaningOfLife {
		return nil, newInvalidFormatErrorf("invalid TIFF magic number: %d", magic)
	}

	if _, err := io.ReadFull(t.r, hdr[4:8]); err != nil {
		return nil, ifEOF(err, "when reading first IFD offset")
	}
	first := byteOrder.Uint32(hdr[4:8])
	if first != 0 && first < 8 {
		return nil, newInvalidFormatErrorf("invalid first IFD offset: %d", first)
	}

	return &IFDs{
		r:             t.r,
		base:          base,
		byteOrder:     byteOrder,
		nextIFDOffset: first,
		seen:          make(map[uint32]bool),
		warnf:         t.warnf,
		limit:         t.limitNumIFDs,
	}, nil
}

// IFDs is the linked list of image file directories.
// It holds the state shared by all IFDs and entries read from it:
// the source, the byte order and the offset of the next IFD.
// It is not safe for concurrent use.
type IFDs struct {
	r         io.ReadSeeker
	base      int64
	byteOrder binary.ByteOrder

	// 0 means there are no more IFDs.
	nextIFDOffset uint32

	index int
	seen  map[uint32]bool
	warnf func(string, ...any)
	limit uint32
}

// ByteOrder returns the byte order of the TIFF stream.
func (d *IFDs) ByteOrder() binary.ByteOrder {
	return d.byteOrder
}

// Next reads the header of the next IFD.
// It returns io.EOF when there are no more IFDs.
func (d *IFDs) Next() (*IFD, error) {
	offset := d.nextIFDOffset
	if offset == 0 {
		return nil, io.EOF
	}
	if d.limit > 0 && uint32(d.index) >= d.limit {
		return nil, newInvalidFormatErrorf("more than %d IFDs", d.limit)
	}
	if d.seen[offset] {
		return nil, newInvalidFormatErrorf("IFD %d at offset %d was already read", d.index, offset)
	}
	d.seen[offset] = true
	if offset%2 != 0 {
		d.warnf("IFD %d starts at odd offset %d", d.index, offset)
	}

	var b [4]byte
	if err := d.readAt(int64(offset), b[:2]); err != nil {
		return nil, ifEOF(err, "when reading number of entries in IFD %d", d.index)
	}
	count := d.byteOrder.Uint16(b[:2])
	if count == 0 {
		return nil, newInvalidFormatErrorf("number of entries in IFD %d is zero", d.index)
	}

	nextOffsetPos := int64(offset) + 2 + int64(count)*tiffEntrySize
	if err := d.readAt(nextOffsetPos, b[:4]); err != nil {
		return nil, ifEOF(err, "when reading the next IFD offset of IFD %d", d.index)
	}

	ifd := &IFD{
		ifds:   d,
		index:  d.index,
		offset: offset,
		count:  count,
		next:   d.byteOrder.Uint32(b[:4]),
	}

	d.nextIFDOffset = ifd.next
	d.index++

	return ifd, nil
}

// All returns an iterator over the remaining IFDs.
// Iteration stops after the first error.
func (d *IFDs) All() iter.Seq2[*IFD, error] {
	return func(yield func(*IFD, error) bool) {
		for {
			ifd, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(ifd, err) || err != nil {
				return
			}
		}
	}
}

// readAt reads len(b) bytes at offset, relative to the start of the TIFF header.
func (d *IFDs) readAt(offset int64, b []byte) error {
	if _, err := d.r.Seek(d.base+offset, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.r, b)
	return err
}

// IFD is an image file directory.
// Entries are read on demand, in any order.
type IFD struct {
	ifds   *IFDs
	index  int
	offset uint32
	count  uint16
	next   uint32

	cur int
}

// Index returns the position of the IFD in the IFD list, starting at 0.
func (ifd *IFD) Index() int {
	return ifd.index
}

// Offset returns the offset of the IFD header.
func (ifd *IFD) Offset() uint32 {
	return ifd.offset
}

// NextOffset returns the offset of the following IFD, 0 if this is the last one.
func (ifd *IFD) NextOffset() uint32 {
	return ifd.next
}

// Len returns the number of entries.
func (ifd *IFD) Len() int {
	return int(ifd.count)
}

// Entry reads entry i.
func (ifd *IFD) Entry(i int) (*Entry, error) {
	if i < 0 || i >= int(ifd.count) {
		return nil, newInvalidFormatErrorf("entry index %d out of range [0, %d)", i, ifd.count)
	}

	var b [tiffEntrySize]byte
	pos := int64(ifd.offset) + 2 + int64(i)*tiffEntrySize
	if err := ifd.ifds.readAt(pos, b[:]); err != nil {
		return nil, ifEOF(err, "when reading entry %d of IFD %d", i, ifd.index)
	}

	order := ifd.ifds.byteOrder
	e := &Entry{
		ifds:  ifd.ifds,
		tag:   order.Uint16(b[0:2]),
		typ:   EntryType(order.Uint16(b[2:4])),
		count: order.Uint32(b[4:8]),
	}
	copy(e.raw[:], b[8:12])

	return e, nil
}

// Next returns the entry after the one previously returned by Next.
// It returns io.EOF after the last entry.
func (ifd *IFD) Next() (*Entry, error) {
	if ifd.cur >= int(ifd.count) {
		return nil, io.EOF
	}
	e, err := ifd.Entry(ifd.cur)
	if err != nil {
		return nil, err
	}
	ifd.cur++
	return e, nil
}

// All returns an iterator over all entries in index order.
// Iteration stops after the first error.
func (ifd *IFD) All() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for i := range int(ifd.count) {
			e, err := ifd.Entry(i)
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// Find returns the first entry with the given tag, or nil if there is none.
func (ifd *IFD) Find(tag uint16) (*Entry, error) {
	for e, err := range ifd.All() {
		if err != nil {
			return nil, err
		}
		if e.tag == tag {
			return e, nil
		}
	}
	return nil, nil
}

// Entry is a TIFF directory entry.
type Entry struct {
	ifds  *IFDs
	tag   uint16
	typ   EntryType
	count uint32
	raw   [4]byte
}

// Tag returns the tag ID.
func (e *Entry) Tag() uint16 {
	return e.tag
}

// Type returns the data type, which may not be a known type.
func (e *Entry) Type() EntryType {
	return e.typ
}

// Count returns the number of values, not bytes.
// For ASCII entries it is the number of bytes including NUL terminators.
func (e *Entry) Count() uint32 {
	return e.count
}

// RawValue returns the 4 byte value/offset field as stored.
func (e *Entry) RawValue() [4]byte {
	return e.raw
}

// Offset returns the value/offset field read as an offset.
// It is only meaningful when IsEmbedded is false.
func (e *Entry) Offset() uint32 {
	return e.ifds.byteOrder.Uint32(e.raw[:])
}

// dataSize returns the size of the entry data in bytes, 0 for unknown types.
func (e *Entry) dataSize() uint64 {
	return uint64(e.typ.Size()) * uint64(e.count)
}

// IsEmbedded reports whether the data fits in, and is stored in, the value field.
// It is false for unknown types.
func (e *Entry) IsEmbedded() bool {
	return e.typ.Known() && e.dataSize() <= 4
}

func (e *Entry) String() string {
	return fmt.Sprintf("tag 0x%04x %s[%d]", e.tag, e.typ, e.count)
}

// Values returns a lazy iterator over the values of e decoded as T.
// Referenced data is read one value at a time, seeking before each read,
// so reads of other entries may be interleaved.
// ok is false if T is not the representation of e's type or the type is unknown.
//
// The representations are: Byte uint8, ASCII string, Short uint16, Long uint32,
// Rational Rat[uint32], SByte int8, Undefined Undefined, SShort int16,
// SLong int32, SRational Rat[int32], Float float32 and Double float64.
func Values[T any](e *Entry) (values iter.Seq2[T, error], ok bool) {
	typ, ok := entryTypeFor[T]()
	if !ok || typ != e.typ {
		return nil, false
	}
	spec := entryTypes[typ]
	total := e.dataSize()
	embedded := e.IsEmbedded()
	order := e.ifds.byteOrder

	return func(yield func(T, error) bool) {
		var (
			consumed uint64
			v        any
			n        int
			err      error
		)
		for i := 0; consumed < total; i++ {
			if embedded {
				v, n = spec.decode(order, e.raw[consumed:total])
			} else {
				v, n, err = e.readValue(spec, uint64(e.Offset())+consumed, total-consumed)
			}
			if err != nil {
				var zero T
				yield(zero, ifEOF(err, "when reading value %d of %s", i, e))
				return
			}
			consumed += uint64(n)
			if !yield(v.(T), nil) {
				return
			}
		}
	}, true
}

func (e *Entry) readValue(spec entryTypeSpec, offset, remaining uint64) (any, int, error) {
	if _, err := e.ifds.r.Seek(e.ifds.base+int64(offset), io.SeekStart); err != nil {
		return nil, 0, err
	}
	return spec.read(e.ifds.r, e.ifds.byteOrder, uint32(remaining))
}

// AllValues reads all values of e decoded as T.
// Referenced data is read with one seek and one read.
// ok is false if T is not the representation of e's type or the type is unknown.
func AllValues[T any](e *Entry) (values []T, ok bool, err error) {
	typ, ok := entryTypeFor[T]()
	if !ok || typ != e.typ {
		return nil, false, nil
	}
	spec := entryTypes[typ]
	total := e.dataSize()
	order := e.ifds.byteOrder

	decodeAll := func(b []byte) {
		if typ != TypeASCII {
			values = make([]T, 0, e.count)
		}
		// Values may be of variable width, so count bytes, not values.
		for consumed := 0; consumed < len(b); {
			v, n := spec.decode(order, b[consumed:])
			values = append(values, v.(T))
			consumed += n
		}
	}

	if e.IsEmbedded() {
		decodeAll(e.raw[:total])
		return values, true, nil
	}

	if total > maxBufSize {
		return nil, true, newInvalidFormatErrorf("%s: data size %d exceeds max %d", e, total, maxBufSize)
	}
	if _, err := e.ifds.r.Seek(e.ifds.base+int64(e.Offset()), io.SeekStart); err != nil {
		return nil, true, err
	}
	br := getByteBuffer(int(total))
	defer putByteBuffer(br)
	if _, err := io.ReadFull(e.ifds.r, br.b); err != nil {
		return nil, true, ifEOF(err, "when reading values of %s", e)
	}
	decodeAll(br.b)

	return values, true, nil
}

// AnyValues reads all values of e using their natural representation, see Values.
// It returns an InvalidFormatError for unknown types.
func (e *Entry) AnyValues() ([]any, error) {
	if !e.typ.Known() {
		return nil, newInvalidFormatErrorf("%s: unknown type %d", e, uint16(e.typ))
	}
	switch e.typ {
	case TypeByte:
		return anyValues[uint8](e)
	case TypeASCII:
		return anyValues[string](e)
	case TypeShort:
		return anyValues[uint16](e)
	case TypeLong:
		return anyValues[uint32](e)
	case TypeRational:
		return anyValues[Rat[uint32]](e)
	case TypeSByte:
		return anyValues[int8](e)
	case TypeUndefined:
		return anyValues[Undefined](e)
	case TypeSShort:
		return anyValues[int16](e)
	case TypeSLong:
		return anyValues[int32](e)
	case TypeSRational:
		return anyValues[Rat[int32]](e)
	case TypeFloat:
		return anyValues[float32](e)
	default:
		return anyValues[float64](e)
	}
}

func anyValues[T any](e *Entry) ([]any, error) {
	vals, _, err := AllValues[T](e)
	if err != nil {
		return nil, err
	}
	result := make([]any, len(vals))
	for i, v := range vals {
		result[i] = v
	}
	return result, nil
}

// Uint returns value i of a Byte, Short or Long entry as an uint32.
// These are the types allowed for most numeric baseline TIFF fields.
func (e *Entry) Uint(i int) (uint32, error) {
	var vals []uint32
	var err error
	switch e.typ {
	case TypeByte:
		vals, err = uintValues[uint8](e)
	case TypeShort:
		vals, err = uintValues[uint16](e)
	case TypeLong:
		vals, err = uintValues[uint32](e)
	default:
		return 0, newInvalidFormatErrorf("%s: expected an unsigned integer type", e)
	}
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(vals) {
		return 0, newInvalidFormatErrorf("%s: value %d out of range", e, i)
	}
	return vals[i], nil
}

func uintValues[T uint8 | uint16 | uint32](e *Entry) ([]uint32, error) {
	vals, _, err := AllValues[T](e)
	if err != nil {
		return nil, err
	}
	result := make([]uint32, len(vals))
	for i, v := range vals {
		result[i] = uint32(v)
	}
	return result, nil
}
