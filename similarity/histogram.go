package similarity

import (
	"image"

	"gocv.io/x/gocv"
)

var (
	histChannels = []int{0, 1, 2}
	histBins     = []int{8, 8, 8}
	// OpenCV stores 8-bit hue as 0..179
	histRanges = []float64{0, 180, 0, 256, 0, 256}
)

// histogramLoss is the Bhattacharyya distance between min-max normalized
// 8x8x8 HSV histograms at 224x224.
func histogramLoss(a, b image.Image) (float64, error) {
	p, err := resizedPair(a, b, WorkingSize)
	if err != nil {
		return 0, err
	}
	defer p.Close()

	hsv := p.convert(gocv.ColorBGRToHSV)
	defer hsv.Close()

	ha := hsvHistogram(hsv.a)
	defer ha.Close()
	hb := hsvHistogram(hsv.b)
	defer hb.Close()

	return float64(gocv.CompareHist(ha, hb, gocv.HistCmpBhattacharya)), nil
}

func hsvHistogram(hsv gocv.Mat) gocv.Mat {
	mask := gocv.NewMat()
	defer mask.Close()

	hist := gocv.NewMat()
	gocv.CalcHist([]gocv.Mat{hsv}, histChannels, mask, &hist, histBins, histRanges, false)
	gocv.Normalize(hist, &hist, 0, 1, gocv.NormMinMax)
	return hist
}
