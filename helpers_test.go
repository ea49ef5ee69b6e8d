// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package immeta

import (
	"encoding"
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestStringer(t *testing.T) {
	c := qt.New(t)
	c.Assert(TypeByte.String(), qt.Equals, "Byte")
	c.Assert(TypeDouble.String(), qt.Equals, "Double")
	c.Assert(EntryType(0).String(), qt.Equals, "EntryType(0)")
	c.Assert(EntryType(13).String(), qt.Equals, "EntryType(13)")

	var imageFormatAuto ImageFormat
	var imageFormat42 ImageFormat = 42
	c.Assert(JPEG.String(), qt.Equals, "JPEG")
	c.Assert(PNG.String(), qt.Equals, "PNG")
	c.Assert(TIFF.String(), qt.Equals, "TIFF")
	c.Assert(WebP.String(), qt.Equals, "WebP")
	c.Assert(GIF.String(), qt.Equals, "GIF")
	c.Assert(imageFormatAuto.String(), qt.Equals, "ImageFormatAuto")
	c.Assert(imageFormat42.String(), qt.Equals, "ImageFormat(42)")

	c.Assert(PNGGrayscaleAlpha.String(), qt.Equals, "Grayscale with alpha")
	c.Assert(PNGColorType(5).String(), qt.Equals, "PNGColorType(5)")
	c.Assert(PNGInterlaceNone.String(), qt.Equals, "Disabled")
	c.Assert(PNGCompressionDeflate.String(), qt.Equals, "DEFLATE")
	c.Assert(PNGFilterAdaptive.String(), qt.Equals, "Adaptive")
	c.Assert(EntropyCodingArithmetic.String(), qt.Equals, "Arithmetic")
	c.Assert(CodingProcessLossless.String(), qt.Equals, "Lossless")
	c.Assert(GIF87a.String(), qt.Equals, "87a")
	c.Assert(DisposalRestoreToPrevious.String(), qt.Equals, "Restore to previous")
	c.Assert(WebPLossless.String(), qt.Equals, "VP8L")
	c.Assert(TIFFCompression(32773).String(), qt.Equals, "PackBits")
	c.Assert(TIFFPhotometric(42).String(), qt.Equals, "TIFFPhotometric(42)")
}

func BenchmarkPrintableString(b *testing.B) {
	runBench := func(b *testing.B, name, s string) {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = printableString(s)
			}
		})
	}

	runBench(b, "ASCII", "Hello, World!")
	runBench(b, "ASCII with whitespace", "   Hello, World!   ")
	runBench(b, "UTF-8", "Hello, 世界!")
	runBench(b, "Mixed", "Hello, 世界! 🌍")
	runBench(b, "Unprintable", "Hello, \x00World!")
}

func TestDecodeText(t *testing.T) {
	c := qt.New(t)

	c.Assert(decodeText([]byte("NETSCAPE")), qt.Equals, "NETSCAPE")
	c.Assert(decodeText([]byte("Hello, 世界")), qt.Equals, "Hello, 世界")
	c.Assert(decodeText([]byte("caf\xe9")), qt.Equals, "café")
	c.Assert(printableString(decodeText([]byte("2.0\x00\x01 "))), qt.Equals, "2.0")
}

func TestRat(t *testing.T) {
	c := qt.New(t)

	c.Run("NewRat", func(c *qt.C) {
		ru, err := NewRat[uint32](1, 2)
		c.Assert(err, qt.Equals, nil)
		c.Assert(ru.Num(), qt.Equals, uint32(1))
		c.Assert(ru.Den(), qt.Equals, uint32(2))

		ri, err := NewRat[int32](1, 2)
		c.Assert(err, qt.Equals, nil)
		c.Assert(ri.Num(), qt.Equals, int32(1))
		c.Assert(ri.Den(), qt.Equals, int32(2))

		_, err = NewRat[int32](10, 0)
		c.Assert(err, qt.ErrorMatches, "denominator must be non-zero")

		// Denominator must be positive.
		ri, err = NewRat[int32](13, -3)
		c.Assert(err, qt.Equals, nil)
		c.Assert(ri.Num(), qt.Equals, int32(-13))
		c.Assert(ri.Den(), qt.Equals, int32(3))
		// Remove the greatest common divisor.
		ri, err = NewRat[int32](6, 9)
		c.Assert(err, qt.Equals, nil)
		c.Assert(ri.Num(), qt.Equals, int32(2))
		c.Assert(ri.Den(), qt.Equals, int32(3))
		ri, err = NewRat[int32](90, 600)
		c.Assert(err, qt.Equals, nil)
		c.Assert(ri.Num(), qt.Equals, int32(3))
		c.Assert(ri.Den(), qt.Equals, int32(20))
	})

	c.Run("Raw", func(c *qt.C) {
		r := newRatRaw[uint32](6, 9)
		c.Assert(r.String(), qt.Equals, "6/9")
		z := newRatRaw[uint32](1, 0)
		c.Assert(z.String(), qt.Equals, "1/0")
		c.Assert(math.IsInf(z.Float64(), 1), qt.IsTrue)
	})

	c.Run("MarshalText", func(c *qt.C) {
		ru, _ := NewRat[uint32](1, 2)
		text, err := ru.(encoding.TextMarshaler).MarshalText()
		c.Assert(err, qt.Equals, nil)
		c.Assert(string(text), qt.Equals, "1/2")
	})

	c.Run("UnmarshalText", func(c *qt.C) {
		ru, _ := NewRat[uint32](1, 2)
		err := ru.(encoding.TextUnmarshaler).UnmarshalText([]byte("3/4"))
		c.Assert(err, qt.Equals, nil)
		c.Assert(ru.Num(), qt.Equals, uint32(3))
		c.Assert(ru.Den(), qt.Equals, uint32(4))

		err = ru.(encoding.TextUnmarshaler).UnmarshalText([]byte("4"))
		c.Assert(err, qt.Equals, nil)
		c.Assert(ru.Num(), qt.Equals, uint32(4))
		c.Assert(ru.Den(), qt.Equals, uint32(1))
	})

	c.Run("String", func(c *qt.C) {
		ru, _ := NewRat[uint32](1, 2)
		c.Assert(ru.String(), qt.Equals, "1/2")
		ru, _ = NewRat[uint32](4, 1)
		c.Assert(ru.String(), qt.Equals, "4")
	})
}
