package imageprocessing

import (
	"image"
	"image/color"

	"github.com/makeworld-the-better-one/dither/v2"
)

// DitherFloydSteinberg reduces a grayscale image to black and white with
// Floyd-Steinberg error diffusion.
func DitherFloydSteinberg(img image.Image) image.Image {
	if img == nil {
		return nil
	}

	palette := color.Palette{
		color.Gray{Y: 0},
		color.Gray{Y: 255},
	}

	ditherer := dither.NewDitherer(palette)
	ditherer.Matrix = dither.FloydSteinberg

	return ditherer.Dither(img)
}
