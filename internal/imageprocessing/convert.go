// Package imageprocessing prepares arbitrary images for 1-bit thermal
// printing: grayscale, aspect-preserving resize, Floyd-Steinberg dithering
// and MSB-first bit packing.
package imageprocessing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/paperminder/paperminder/internal/wire"
)

// MaxPackedBytes caps the packed payload handed to a printer.
const MaxPackedBytes = 50 * 1024

// DecodeImage parses PNG, JPEG or GIF data.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// PackBitmap converts a black-and-white image to packed 1-bit rows,
// MSB-first, row-major top to bottom. A set bit means print (black).
func PackBitmap(img image.Image) ([]byte, int, int, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width%8 != 0 {
		return nil, 0, 0, fmt.Errorf("bitmap width %d is not a multiple of 8", width)
	}

	bytesPerRow := width / 8
	out := make([]byte, bytesPerRow*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			if gray.Y < 128 {
				out[y*bytesPerRow+x/8] |= 1 << (7 - uint(x%8))
			}
		}
	}
	return out, width, height, nil
}

// PrepareBitmapFrame runs the full pipeline and builds the print_bitmap
// frame: resize to the target width, dither, pack, base64 encode. The
// packed payload must fit the 50 KiB wire cap.
func PrepareBitmapFrame(img image.Image, targetWidth int, caption string) (*wire.PrintBitmap, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to process")
	}

	resized := ResizeForPrinter(img, targetWidth)
	dithered := DitherFloydSteinberg(resized)

	packed, width, height, err := PackBitmap(dithered)
	if err != nil {
		return nil, err
	}
	if len(packed) > MaxPackedBytes {
		return nil, fmt.Errorf("packed bitmap is %d bytes, exceeds %d byte cap", len(packed), MaxPackedBytes)
	}

	return &wire.PrintBitmap{
		Type:    wire.KindPrintBitmap,
		Width:   width,
		Height:  height,
		Data:    base64.StdEncoding.EncodeToString(packed),
		Caption: caption,
	}, nil
}
