package imageprocessor

import (
	"fmt"
	"image"
	"math/bits"
	"sort"

	"gocv.io/x/gocv"
)

// Hash is a 64-bit image fingerprint. Visually close images have hashes with
// a small Hamming distance.
type Hash uint64

func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// ParseHash reads the hexadecimal form produced by Hash.String
func ParseHash(s string) (Hash, error) {
	var v uint64
	if _, err := fmt.Sscanf(s, "%016x", &v); err != nil {
		return 0, fmt.Errorf("invalid image hash %q: %w", s, err)
	}
	return Hash(v), nil
}

// HammingDistance counts the differing bits of two hashes
func HammingDistance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

func grayMat(img image.Image, size image.Point) (gocv.Mat, error) {
	if img == nil || img.Bounds().Empty() {
		return gocv.NewMat(), fmt.Errorf("cannot compute hash for empty image")
	}
	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("converting image: %w", err)
	}
	defer bgr.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(bgr, &resized, size, 0, 0, gocv.InterpolationArea)

	gray := gocv.NewMat()
	gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// AverageHash sets one bit per pixel of the 8x8 luma thumbnail that is at
// least as bright as the thumbnail mean
func AverageHash(img image.Image) (Hash, error) {
	gray, err := grayMat(img, image.Pt(8, 8))
	if err != nil {
		return 0, err
	}
	defer gray.Close()

	pixels := gray.ToBytes()
	var sum int
	for _, p := range pixels {
		sum += int(p)
	}
	mean := float64(sum) / float64(len(pixels))

	var h Hash
	for _, p := range pixels {
		h <<= 1
		if float64(p) >= mean {
			h |= 1
		}
	}
	return h, nil
}

// PerceptualHash compares the 8x8 low frequency DCT coefficients of the 32x32
// luma thumbnail against their median
func PerceptualHash(img image.Image) (Hash, error) {
	gray, err := grayMat(img, image.Pt(32, 32))
	if err != nil {
		return 0, err
	}
	defer gray.Close()

	floatImg := gocv.NewMat()
	defer floatImg.Close()
	gray.ConvertTo(&floatImg, gocv.MatTypeCV32F)

	dct := gocv.NewMat()
	defer dct.Close()
	gocv.DCT(floatImg, &dct, 0)

	values := make([]float32, 0, 64)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			values = append(values, dct.GetFloatAt(y, x))
		}
	}
	median := calculateMedian(values)

	var h Hash
	for _, v := range values {
		h <<= 1
		if v >= median {
			h |= 1
		}
	}
	return h, nil
}

func calculateMedian(values []float32) float32 {
	sorted := append([]float32(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
