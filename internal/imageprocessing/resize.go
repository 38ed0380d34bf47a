package imageprocessing

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// StandardWidth58mm is the printable width of a 58mm thermal head in pixels.
const StandardWidth58mm = 384

// ResizeForPrinter scales an image to the target width, preserving aspect
// ratio. The width is snapped down to a multiple of 8 so rows pack into
// whole bytes; 0 selects the standard 58mm width.
func ResizeForPrinter(img image.Image, targetWidth int) image.Image {
	if img == nil {
		return nil
	}
	if targetWidth <= 0 {
		targetWidth = StandardWidth58mm
	}
	targetWidth = (targetWidth / 8) * 8
	if targetWidth < 8 {
		targetWidth = 8
	}

	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	targetHeight := srcHeight * targetWidth / srcWidth
	if targetHeight < 1 {
		targetHeight = 1
	}

	if srcWidth == targetWidth {
		return img
	}

	resized := image.NewGray(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, xdraw.Src, nil)
	return resized
}
