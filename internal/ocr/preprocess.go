package ocr

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Preprocessor cleans up a rendered page before recognition.
type Preprocessor interface {
	Preprocess(image []byte) ([]byte, error)
}

// Binarizer turns a scanned page into black text on a white background:
// grayscale, gaussian denoise, contrast stretch, then an Otsu threshold.
type Binarizer struct {
	// BlurSigma of 0 skips denoising.
	BlurSigma float64
	// ClipPercent of the darkest and of the brightest pixels saturate
	// during the contrast stretch.
	ClipPercent float64
}

// NewBinarizer creates a binarizer tuned for 300-400 DPI textbook scans.
func NewBinarizer() *Binarizer {
	return &Binarizer{BlurSigma: 0.8, ClipPercent: 1}
}

// Preprocess decodes a PNG or JPEG page and returns the binarized page as PNG.
func (b *Binarizer) Preprocess(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}

	gray := imaging.Grayscale(img)
	if b.BlurSigma > 0 {
		gray = imaging.Blur(gray, b.BlurSigma)
	}

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	lum := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			lum[y*w+x] = row[x*4]
		}
	}

	stretchContrast(lum, b.ClipPercent)
	threshold := OtsuThreshold(lum)

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if lum[y*w+x] > threshold {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}
	return buf.Bytes(), nil
}

// stretchContrast maps the clipped luminance range linearly onto 0-255.
func stretchContrast(lum []uint8, clipPercent float64) {
	if len(lum) == 0 {
		return
	}

	var hist [256]int
	for _, v := range lum {
		hist[v]++
	}

	clip := int(float64(len(lum)) * clipPercent / 100)
	lo, hi := 0, 255
	for seen := 0; lo < 255; lo++ {
		seen += hist[lo]
		if seen > clip {
			break
		}
	}
	for seen := 0; hi > 0; hi-- {
		seen += hist[hi]
		if seen > clip {
			break
		}
	}
	if hi <= lo {
		return
	}

	var lut [256]uint8
	for v := range lut {
		switch {
		case v <= lo:
			lut[v] = 0
		case v >= hi:
			lut[v] = 255
		default:
			lut[v] = uint8((v - lo) * 255 / (hi - lo))
		}
	}
	for i, v := range lum {
		lum[i] = lut[v]
	}
}

// OtsuThreshold returns the level that maximizes the between-class variance
// of the histogram. Pixels above it are background.
func OtsuThreshold(lum []uint8) uint8 {
	var hist [256]int
	for _, v := range lum {
		hist[v]++
	}

	total := len(lum)
	var sum float64
	for v, n := range hist {
		sum += float64(v * n)
	}

	var (
		sumBelow    float64
		weightBelow int
		best        float64
		threshold   uint8
	)
	for t := 0; t < 256; t++ {
		weightBelow += hist[t]
		if weightBelow == 0 {
			continue
		}
		weightAbove := total - weightBelow
		if weightAbove == 0 {
			break
		}

		sumBelow += float64(t * hist[t])
		meanBelow := sumBelow / float64(weightBelow)
		meanAbove := (sum - sumBelow) / float64(weightAbove)

		between := float64(weightBelow) * float64(weightAbove) * (meanBelow - meanAbove) * (meanBelow - meanAbove)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}
