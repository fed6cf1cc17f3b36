package lib

import (
	"bytes"
	"fmt"
	_ "image/gif" // Support GIF
	"image/jpeg"
	_ "image/png" // Support PNG

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Support WebP
)

// Thumbnail decodes an uploaded image and re-encodes it as a JPEG that fits
// into a size x size box. Images already smaller than the box are not upscaled.
func Thumbnail(data []byte, size, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() > size || img.Bounds().Dy() > size {
		img = imaging.Fit(img, size, size, imaging.Lanczos)
	}

	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return buf.Bytes(), nil
}
