// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Command immeta loads and displays the metadata of an image file.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/netvl/immeta"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("")

	verbose := flag.Bool("v", false, "print warnings")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: immeta [-v] FILE\n\nLoads and displays metadata from image files.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	filename := flag.Arg(0)
	if err := run(os.Stdout, filename, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load image metadata from %s: %v\n", filename, err)
		os.Exit(1)
	}
}

func run(w io.Writer, filename string, verbose bool) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	opts := immeta.Options{R: f}
	if verbose {
		opts.Warnf = func(format string, args ...any) {
			log.Printf("warning: "+format, args...)
		}
	}

	md, err := immeta.Decode(opts)
	if err != nil {
		return err
	}

	printMetadata(w, md)
	return nil
}

func printMetadata(w io.Writer, md immeta.Metadata) {
	p := func(key string, value any) {
		fmt.Fprintf(w, "  %s: %v\n", key, value)
	}

	fmt.Fprintf(w, "%s image:\n", strings.ToUpper(md.Format().String()))

	switch m := md.(type) {
	case *immeta.JPEGMetadata:
		p("Width", m.Width)
		p("Height", m.Height)
		p("Sample precision", m.SamplePrecision)
		p("Components", m.Components)
		p("Baseline", m.Baseline)
		p("Differential", m.Differential)
		p("Entropy coding", m.EntropyCoding)
		p("Coding process", m.CodingProcess)
	case *immeta.PNGMetadata:
		p("Width", m.Width)
		p("Height", m.Height)
		p("Color type", m.ColorType)
		p("Color depth", fmt.Sprintf("%d bpp", m.ColorDepth))
		p("Compression method", m.CompressionMethod)
		p("Filter method", m.FilterMethod)
		p("Interlace method", m.InterlaceMethod)
	case *immeta.GIFMetadata:
		p("Version", m.Version)
		p("Width", m.Width)
		p("Height", m.Height)
		p("Global color table", colorTable(m.GlobalColorTable))
		p("Color resolution", fmt.Sprintf("%d bits", m.ColorResolution))
		p("Background color index", m.BackgroundColorIndex)
		if ratio, ok := m.PixelAspectRatioApprox(); ok {
			p("Pixel aspect ratio", ratio)
		}
		p("Frames", m.FramesNumber())
		p("Animated", m.IsAnimated())
		for i, b := range m.Blocks {
			p(fmt.Sprintf("Block %d", i), gifBlock(b))
		}
	case *immeta.WebPMetadata:
		p("Codec", m.Codec)
		switch {
		case m.VP8 != nil:
			p("Version number", m.VP8.VersionNumber)
			p("Show frame", m.VP8.ShowFrame)
			p("First partition length", m.VP8.FirstPartitionLen)
			p("Key frame", m.VP8.KeyFrame)
			if m.VP8.KeyFrame {
				p("Width", m.VP8.Width)
				p("Height", m.VP8.Height)
				p("Horizontal scale", m.VP8.XScale)
				p("Vertical scale", m.VP8.YScale)
			}
		case m.VP8L != nil:
			p("Width", m.VP8L.Width)
			p("Height", m.VP8L.Height)
			p("Alpha", m.VP8L.AlphaIsUsed)
			p("Version", m.VP8L.Version)
		case m.VP8X != nil:
			p("Canvas width", m.VP8X.CanvasWidth)
			p("Canvas height", m.VP8X.CanvasHeight)
			p("ICC profile", m.VP8X.ICC)
			p("Alpha", m.VP8X.Alpha)
			p("EXIF", m.VP8X.EXIF)
			p("XMP", m.VP8X.XMP)
			p("Animation", m.VP8X.Animation)
		}
	case *immeta.TIFFMetadata:
		p("Byte order", m.ByteOrder)
		p("IFDs", m.NumIFDs)
		p("Width", m.Width)
		p("Height", m.Height)
		p("Bits per sample", m.BitsPerSample)
		p("Samples per pixel", m.SamplesPerPixel)
		p("Compression", m.Compression)
		if m.HasPhotometric {
			p("Photometric interpretation", m.Photometric)
		}
	}
}

func colorTable(ct *immeta.ColorTable) string {
	if ct == nil {
		return "none"
	}
	if ct.Sorted {
		return fmt.Sprintf("%d colors, sorted", ct.Size)
	}
	return fmt.Sprintf("%d colors", ct.Size)
}

func gifBlock(b immeta.GIFBlock) string {
	switch b := b.(type) {
	case *immeta.ImageDescriptor:
		s := fmt.Sprintf("image %dx%d at (%d, %d), local color table: %s",
			b.Width, b.Height, b.Left, b.Top, colorTable(b.LocalColorTable))
		if b.Interlace {
			s += ", interlaced"
		}
		return s
	case *immeta.GraphicControlExtension:
		s := fmt.Sprintf("graphic control, disposal: %s, delay: %d ms", b.DisposalMethod, b.DelayTimeMs())
		if b.HasTransparentColor {
			s += fmt.Sprintf(", transparent color: %d", b.TransparentColorIndex)
		}
		return s
	case *immeta.PlainTextExtension:
		return fmt.Sprintf("plain text %dx%d at (%d, %d)", b.Width, b.Height, b.Left, b.Top)
	case *immeta.ApplicationExtension:
		return fmt.Sprintf("application %s%s", b.IdentifierString(), b.AuthenticationCodeString())
	case *immeta.CommentExtension:
		return "comment"
	default:
		return fmt.Sprintf("%T", b)
	}
}
