// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding/binary"
	"io"
	"iter"
)

// ChunkID is the four byte identifier of a RIFF chunk.
type ChunkID [4]byte

// String returns the identifier as text, e.g. "WEBP" or "VP8 ".
func (id ChunkID) String() string {
	return decodeText(id[:])
}

var (
	fccRIFF = ChunkID{'R', 'I', 'F', 'F'}
	fccLIST = ChunkID{'L', 'I', 'S', 'T'}
)

// countingReader reads at most n bytes from r.
// Every byte delivered is also added to counter, if set.
type countingReader struct {
	r       io.Reader
	n       int64
	counter *uint32
}

func (c *countingReader) Read(p []byte) (int, error) {
	if c.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > c.n {
		p = p[:c.n]
	}
	n, err := c.r.Read(p)
	c.n -= int64(n)
	if c.counter != nil {
		*c.counter += uint32(n)
	}
	return n, err
}

// RIFFReader reads the chunk tree of a RIFF stream.
// The source does not need to be seekable.
type RIFFReader struct {
	r io.Reader
}

// NewRIFFReader returns a new RIFFReader reading from r.
func NewRIFFReader(r io.Reader) *RIFFReader {
	return &RIFFReader{r: r}
}

// Root reads the header of the root chunk, which must be a RIFF chunk.
func (r *RIFFReader) Root() (*Chunk, error) {
	id, length, err := readChunkHeader(r.r)
	if err != nil {
		return nil, ifEOF(err, "when reading RIFF header")
	}
	if id != fccRIFF {
		return nil, newInvalidFormatErrorf("RIFF file header is invalid: %q", id[:])
	}
	return newChunk(r.r, id, length, nil), nil
}

// Chunk is a RIFF chunk whose header has been read.
// Its contents can be read once, either as raw bytes using Contents
// or as a list of sub chunks using IntoList.
type Chunk struct {
	id      ChunkID
	length  uint32
	tainted bool
	data    *countingReader
}

func newChunk(r io.Reader, id ChunkID, length uint32, counter *uint32) *Chunk {
	return &Chunk{
		id:     id,
		length: length,
		data: &countingReader{
			r:       r,
			n:       int64(length),
			counter: counter,
		},
	}
}

// ID returns the chunk identifier.
func (c *Chunk) ID() ChunkID {
	return c.id
}

// Len returns the declared length of the chunk data in bytes, not including any padding.
func (c *Chunk) Len() uint32 {
	return c.length
}

// Contents returns a reader for the chunk data, bounded to the declared length.
// Once called, the chunk can no longer be turned into a list.
func (c *Chunk) Contents() io.Reader {
	c.tainted = true
	return c.data
}

// CanHaveSubchunks reports whether IntoList would succeed,
// i.e. the chunk is a RIFF or LIST chunk and its contents have not been read.
func (c *Chunk) CanHaveSubchunks() bool {
	return !c.tainted && (c.id == fccRIFF || c.id == fccLIST)
}

// IntoList converts c into a list chunk and reads the list type.
// If c cannot have sub chunks, list is nil and c is returned unchanged as orig,
// so its contents can still be read.
// On success c is consumed and must not be used again.
func (c *Chunk) IntoList() (list *ListChunk, orig *Chunk, err error) {
	if !c.CanHaveSubchunks() {
		return nil, c, nil
	}
	c.tainted = true

	var typ ChunkID
	if _, err := io.ReadFull(c.data, typ[:]); err != nil {
		return nil, nil, ifEOF(err, "when reading type of %s chunk", c.id)
	}

	return &ListChunk{
		id:     c.id,
		length: c.length,
		typ:    typ,
		data:   c.data,
	}, nil, nil
}

// ListChunk is a RIFF or LIST chunk which contains sub chunks.
type ListChunk struct {
	id     ChunkID
	length uint32
	typ    ChunkID
	data   *countingReader

	// Declared length and bytes read of the current child.
	curLen  uint32
	curRead uint32
	index   int
}

// ID returns the chunk identifier, RIFF or LIST.
func (l *ListChunk) ID() ChunkID {
	return l.id
}

// Len returns the declared length of the chunk data in bytes, including the list type.
func (l *ListChunk) Len() uint32 {
	return l.length
}

// Type returns the list type, e.g. WEBP.
func (l *ListChunk) Type() ChunkID {
	return l.typ
}

// Next returns the next child chunk.
// Any unread data of the previous child, and its padding byte, is skipped first.
// It returns io.EOF when there are no more children.
func (l *ListChunk) Next() (*Chunk, error) {
	if err := l.skipRemainder(); err != nil {
		return nil, err
	}

	id, length, err := readChunkHeader(l.data)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, ifEOF(err, "when reading header of chunk %d in %s list", l.index, l.typ)
	}

	l.curLen = length
	l.curRead = 0
	l.index++

	return newChunk(l.data, id, length, &l.curRead), nil
}

func (l *ListChunk) skipRemainder() error {
	if l.curRead < l.curLen {
		toSkip := int64(l.curLen - l.curRead)
		n, err := io.CopyN(io.Discard, l.data, toSkip)
		if n != toSkip {
			if err == nil || err == io.EOF {
				return newUnexpectedEOFErrorf("when skipping data of chunk %d in %s list", l.index-1, l.typ)
			}
			return err
		}
		l.curRead = l.curLen
	}

	if l.curLen%2 == 1 {
		// Odd sized chunks are followed by a padding byte.
		// Some writers leave it out on the last chunk, so allow it to be missing.
		var pad [1]byte
		if _, err := io.ReadFull(l.data, pad[:]); err != nil && err != io.EOF {
			return err
		}
		l.curLen = 0
		l.curRead = 0
	}

	return nil
}

// All returns an iterator over the remaining children.
// Iteration stops after the first error.
func (l *ListChunk) All() iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		for {
			c, err := l.Next()
			if err == io.EOF {
				return
			}
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

// readChunkHeader reads the 4 byte id and the 4 byte little endian length.
// It returns io.EOF if no bytes were available.
func readChunkHeader(r io.Reader) (ChunkID, uint32, error) {
	var hdr [8]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return ChunkID{}, 0, io.EOF
		}
		return ChunkID{}, 0, err
	}
	var id ChunkID
	copy(id[:], hdr[:4])
	return id, binary.LittleEndian.Uint32(hdr[4:]), nil
}
