// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	gifImageDescriptor = 0x2c
	gifExtension       = 0x21
	gifTrailer         = 0x3b

	gifPlainTextLabel      = 0x01
	gifGraphicControlLabel = 0xf9
	gifCommentLabel        = 0xfe
	gifApplicationLabel    = 0xff
)

// GIFVersion is the version from the GIF header.
type GIFVersion uint8

const (
	GIF87a GIFVersion = iota
	GIF89a
)

func (v GIFVersion) String() string {
	switch v {
	case GIF87a:
		return "87a"
	case GIF89a:
		return "89a"
	default:
		return fmt.Sprintf("GIFVersion(%d)", uint8(v))
	}
}

// ColorTable describes a global or local color table.
type ColorTable struct {
	// Size is the number of colors, between 2 and 256.
	Size uint16
	// Sorted is set if the colors are sorted in order of decreasing importance.
	Sorted bool
}

func newColorTable(sizeBits uint8, sorted bool) *ColorTable {
	return &ColorTable{
		Size:   1 << (sizeBits + 1),
		Sorted: sorted,
	}
}

// GIFBlock is one block of a GIF image.
// It is one of *ImageDescriptor, *GraphicControlExtension, *PlainTextExtension,
// *ApplicationExtension or *CommentExtension.
type GIFBlock interface {
	isGIFBlock()
}

// ImageDescriptor describes one frame of a GIF image.
type ImageDescriptor struct {
	Left   uint16
	Top    uint16
	Width  uint16
	Height uint16

	// LocalColorTable is nil if the frame uses the global color table.
	LocalColorTable *ColorTable

	Interlace bool
}

// DisposalMethod defines how a frame is treated after it has been displayed.
type DisposalMethod uint8

const (
	DisposalNone DisposalMethod = iota
	DisposalDoNotDispose
	DisposalRestoreToBackground
	DisposalRestoreToPrevious
)

// Known reports whether d is one of the defined methods.
// The values 4 to 7 are reserved.
func (d DisposalMethod) Known() bool {
	return d <= DisposalRestoreToPrevious
}

func (d DisposalMethod) String() string {
	switch d {
	case DisposalNone:
		return "None"
	case DisposalDoNotDispose:
		return "Do not dispose"
	case DisposalRestoreToBackground:
		return "Restore to background color"
	case DisposalRestoreToPrevious:
		return "Restore to previous"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(d))
	}
}

// GraphicControlExtension controls how the following frame is displayed.
type GraphicControlExtension struct {
	DisposalMethod DisposalMethod
	UserInput      bool

	// TransparentColorIndex is only valid if HasTransparentColor is set.
	HasTransparentColor   bool
	TransparentColorIndex uint8

	// DelayTime is in hundredths of a second. 0 means no delay.
	DelayTime uint16
}

// DelayTimeMs returns the delay time in milliseconds.
func (g *GraphicControlExtension) DelayTimeMs() uint32 {
	return uint32(g.DelayTime) * 10
}

// PlainTextExtension describes a text grid rendered into the image.
type PlainTextExtension struct {
	Left   uint16
	Top    uint16
	Width  uint16
	Height uint16

	CellWidth  uint8
	CellHeight uint8

	ForegroundColorIndex uint8
	BackgroundColorIndex uint8
}

// ApplicationExtension identifies the application which wrote the block,
// e.g. NETSCAPE2.0 for the looping extension.
type ApplicationExtension struct {
	Identifier         [8]byte
	AuthenticationCode [3]byte
}

// IdentifierString returns the application identifier as text.
func (a *ApplicationExtension) IdentifierString() string {
	return printableString(decodeText(a.Identifier[:]))
}

// AuthenticationCodeString returns the authentication code as text.
func (a *ApplicationExtension) AuthenticationCodeString() string {
	return printableString(decodeText(a.AuthenticationCode[:]))
}

// CommentExtension is a comment block. The comment itself is not kept.
type CommentExtension struct{}

func (*ImageDescriptor) isGIFBlock()         {}
func (*GraphicControlExtension) isGIFBlock() {}
func (*PlainTextExtension) isGIFBlock()      {}
func (*ApplicationExtension) isGIFBlock()    {}
func (*CommentExtension) isGIFBlock()        {}

// GIFMetadata is the metadata of a GIF image.
type GIFMetadata struct {
	Version GIFVersion

	// Logical screen size.
	Width  uint16
	Height uint16

	// GlobalColorTable is nil if there is none.
	GlobalColorTable *ColorTable

	// ColorResolution is the number of bits per primary color
	// available to the original image.
	ColorResolution      uint8
	BackgroundColorIndex uint8
	// PixelAspectRatio is the raw factor, 0 if not given.
	// See PixelAspectRatioApprox.
	PixelAspectRatio uint8

	Blocks []GIFBlock
}

func (m *GIFMetadata) Format() ImageFormat { return GIF }
func (m *GIFMetadata) MIMEType() string { return GIF.MIMEType() }
func (m *GIFMetadata) Dimensions() Dimensions {
	return Dimensions{uint32(m.Width), uint32(m.Height)}
}
func (m *GIFMetadata) isMetadata() {}

// PixelAspectRatioApprox returns the pixel aspect ratio (width over height),
// if set.
func (m *GIFMetadata) PixelAspectRatioApprox() (float64, bool) {
	if m.PixelAspectRatio == 0 {
		return 0, false
	}
	return (float64(m.PixelAspectRatio) + 15) / 64, true
}

// FramesNumber returns the number of image descriptor blocks.
func (m *GIFMetadata) FramesNumber() int {
	var n int
	for _, b := range m.Blocks {
		if _, ok := b.(*ImageDescriptor); ok {
			n++
		}
	}
	return n
}

// IsAnimated reports whether the image has more than one frame.
func (m *GIFMetadata) IsAnimated() bool {
	return m.FramesNumber() > 1
}

// DecodeGIF reads the metadata of the GIF image in r.
func DecodeGIF(r io.Reader) (*GIFMetadata, error) {
	return decodeGIF(r, Options{})
}

func decodeGIF(r io.Reader, opts Options) (*GIFMetadata, error) {
	dec := &imageDecoderGIF{
		baseStreamingDecoder: newBaseStreamingDecoder(r, opts, binary.LittleEndian),
	}
	if err := dec.run(dec.decode); err != nil {
		return nil, err
	}
	return &dec.md, nil
}

type imageDecoderGIF struct {
	*baseStreamingDecoder
	md GIFMetadata
}

func (e *imageDecoderGIF) decode() error {
	e.at("when reading GIF signature")
	sig := e.readBytesVolatile(6)
	if string(sig[:3]) != "GIF" {
		return newInvalidFormatErrorf("invalid GIF signature: %q", sig[:3])
	}
	switch string(sig[3:]) {
	case "87a":
		e.md.Version = GIF87a
	case "89a":
		e.md.Version = GIF89a
	default:
		return newInvalidFormatErrorf("invalid GIF version: %q", sig[3:])
	}

	e.at("when reading logical width")
	e.md.Width = e.read2()
	e.at("when reading logical height")
	e.md.Height = e.read2()

	e.at("when reading global flags")
	flags := e.read1()
	e.md.ColorResolution = (flags&0b01110000)>>4 + 1
	if flags&0b10000000 != 0 {
		e.md.GlobalColorTable = newColorTable(flags&0b00000111, flags&0b00001000 != 0)
	}

	e.at("when reading background color index")
	e.md.BackgroundColorIndex = e.read1()
	e.at("when reading pixel aspect ratio")
	e.md.PixelAspectRatio = e.read1()

	if ct := e.md.GlobalColorTable; ct != nil {
		e.at("when reading global color table")
		e.skip(int64(ct.Size) * 3)
	}

	for index := 0; ; index++ {
		if uint32(index) >= e.opts.LimitNumBlocks {
			return newInvalidFormatErrorf("more than %d blocks", e.opts.LimitNumBlocks)
		}

		e.at("when reading separator of block %d", index)
		separator := e.read1()

		var block GIFBlock
		var err error
		switch separator {
		case gifImageDescriptor:
			block = e.readImageDescriptor(index)
		case gifExtension:
			e.at("when reading label of block %d", index)
			label := e.read1()
			switch label {
			case gifPlainTextLabel:
				block, err = e.readPlainText(index)
			case gifGraphicControlLabel:
				block, err = e.readGraphicControl(index)
			case gifCommentLabel:
				block = e.readComment(index)
			case gifApplicationLabel:
				block, err = e.readApplication(index)
			default:
				return newInvalidFormatErrorf("unknown extension type of block %d: 0x%X", index, label)
			}
		case gifTrailer:
			// Anything after the trailer is left unread.
			return nil
		default:
			return newInvalidFormatErrorf("unknown block type of block %d: 0x%X", index, separator)
		}
		if err != nil {
			return err
		}

		e.md.Blocks = append(e.md.Blocks, block)
	}
}

// skipSubBlocks skips a run of data sub-blocks up to and including the terminator.
func (e *imageDecoderGIF) skipSubBlocks(format string, args ...any) {
	e.at(format, args...)
	for {
		n := e.read1()
		if n == 0 {
			return
		}
		e.skip(int64(n))
	}
}

func (e *imageDecoderGIF) readBlockSize(name string, index int, expect uint8) error {
	e.at("when reading block size of %s block %d", name, index)
	if size := e.read1(); size != expect {
		return newInvalidFormatErrorf("invalid block size in %s block %d: %d", name, index, size)
	}
	return nil
}

func (e *imageDecoderGIF) readImageDescriptor(index int) *ImageDescriptor {
	var d ImageDescriptor

	e.at("when reading left offset of image block %d", index)
	d.Left = e.read2()
	e.at("when reading top offset of image block %d", index)
	d.Top = e.read2()
	e.at("when reading width of image block %d", index)
	d.Width = e.read2()
	e.at("when reading height of image block %d", index)
	d.Height = e.read2()

	e.at("when reading flags of image block %d", index)
	flags := e.read1()
	d.Interlace = flags&0b01000000 != 0
	if flags&0b10000000 != 0 {
		d.LocalColorTable = newColorTable(flags&0b00000111, flags&0b00100000 != 0)
		e.at("when reading color table of image block %d", index)
		e.skip(int64(d.LocalColorTable.Size) * 3)
	}

	e.at("when reading LZW minimum code size of image block %d", index)
	e.read1()
	e.skipSubBlocks("when reading image data of image block %d", index)

	return &d
}

func (e *imageDecoderGIF) readGraphicControl(index int) (*GraphicControlExtension, error) {
	const name = "graphic control extension"
	if err := e.readBlockSize(name, index, 4); err != nil {
		return nil, err
	}

	var g GraphicControlExtension

	e.at("when reading flags of %s block %d", name, index)
	flags := e.read1()
	g.DisposalMethod = DisposalMethod((flags & 0b00011100) >> 2)
	g.UserInput = flags&0b00000010 != 0
	g.HasTransparentColor = flags&0b00000001 != 0

	e.at("when reading delay time of %s block %d", name, index)
	g.DelayTime = e.read2()
	e.at("when reading transparent color index of %s block %d", name, index)
	g.TransparentColorIndex = e.read1()
	if !g.HasTransparentColor {
		g.TransparentColorIndex = 0
	}

	if !g.DisposalMethod.Known() {
		e.opts.Warnf("unknown disposal method in %s block %d: %d", name, index, uint8(g.DisposalMethod))
	}

	e.skipSubBlocks("when reading block terminator of %s block %d", name, index)

	return &g, nil
}

func (e *imageDecoderGIF) readPlainText(index int) (*PlainTextExtension, error) {
	const name = "plain text extension"
	if err := e.readBlockSize(name, index, 12); err != nil {
		return nil, err
	}

	var p PlainTextExtension

	e.at("when reading left offset of %s block %d", name, index)
	p.Left = e.read2()
	e.at("when reading top offset of %s block %d", name, index)
	p.Top = e.read2()
	e.at("when reading width of %s block %d", name, index)
	p.Width = e.read2()
	e.at("when reading height of %s block %d", name, index)
	p.Height = e.read2()

	e.at("when reading character cell size of %s block %d", name, index)
	p.CellWidth = e.read1()
	p.CellHeight = e.read1()

	e.at("when reading colors of %s block %d", name, index)
	p.ForegroundColorIndex = e.read1()
	p.BackgroundColorIndex = e.read1()

	e.skipSubBlocks("when reading text data of %s block %d", name, index)

	return &p, nil
}

func (e *imageDecoderGIF) readApplication(index int) (*ApplicationExtension, error) {
	const name = "application extension"
	if err := e.readBlockSize(name, index, 11); err != nil {
		return nil, err
	}

	var a ApplicationExtension

	e.at("when reading application identifier of %s block %d", name, index)
	e.readBytes(a.Identifier[:])
	e.at("when reading authentication code of %s block %d", name, index)
	e.readBytes(a.AuthenticationCode[:])

	e.skipSubBlocks("when reading application data of %s block %d", name, index)

	return &a, nil
}

func (e *imageDecoderGIF) readComment(index int) *CommentExtension {
	e.skipSubBlocks("when reading comment data of comment extension block %d", index)
	return &CommentExtension{}
}
