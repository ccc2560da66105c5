// Package preprocess turns lesion photos into the fixed-shape tensor the
// classifier consumes.
package preprocess

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// caffeMean is the per-channel mean in BGR order.
	caffeMean    = [3]float32{103.939, 116.779, 123.68}
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("failed to decode image: empty bounds %v", b)
	}
	return img, nil
}

// Tensor resizes img to the model's square input and lays the normalised
// channels out as metadata describes.
func Tensor(img image.Image, metadata model.Metadata) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	size := metadata.ImageSize
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}

	// Nearest neighbour matches how the training pipeline loaded images.
	resized := resize.Resize(uint(size), uint(size), img, resize.NearestNeighbor)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width != size || height != size {
		return nil, fmt.Errorf("%w: resized to %dx%d, want %dx%d", model.ErrShapeMismatch, width, height, size, size)
	}

	plane := width * height
	inputData := make([]float32, 3*plane)
	if want := metadata.InputSize(); want != 0 && want != len(inputData) {
		return nil, fmt.Errorf("%w: image yields %d values, model expects %d", model.ErrShapeMismatch, len(inputData), want)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			channels := normalize(metadata.Normalization,
				float32(r>>8), float32(g>>8), float32(b>>8))

			pixelIndex := y*width + x
			for c, v := range channels {
				if metadata.Layout == model.LayoutNCHW {
					inputData[c*plane+pixelIndex] = v
				} else {
					inputData[pixelIndex*3+c] = v
				}
			}
		}
	}

	return inputData, nil
}

// normalize maps 0-255 RGB samples to the three model channels.
func normalize(mode string, r, g, b float32) [3]float32 {
	switch mode {
	case model.NormUnit:
		return [3]float32{r / 255, g / 255, b / 255}
	case model.NormImageNet:
		return [3]float32{
			(r/255 - imageNetMean[0]) / imageNetStd[0],
			(g/255 - imageNetMean[1]) / imageNetStd[1],
			(b/255 - imageNetMean[2]) / imageNetStd[2],
		}
	default:
		return [3]float32{b - caffeMean[0], g - caffeMean[1], r - caffeMean[2]}
	}
}

// File is DecodeFile followed by Tensor.
func File(path string, metadata model.Metadata) ([]float32, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return Tensor(img, metadata)
}
