package similarity

import (
	"image"

	"gocv.io/x/gocv"
)

const (
	cannyLow  = 100
	cannyHigh = 200
)

// edgeLoss is the mean absolute difference of the two Canny edge maps at
// 224x224, scaled to [0,1].
func edgeLoss(a, b image.Image) (float64, error) {
	p, err := resizedPair(a, b, WorkingSize)
	if err != nil {
		return 0, err
	}
	defer p.Close()

	g := p.gray()
	defer g.Close()

	edges := pair{a: gocv.NewMat(), b: gocv.NewMat()}
	defer edges.Close()
	gocv.Canny(g.a, &edges.a, cannyLow, cannyHigh)
	gocv.Canny(g.b, &edges.b, cannyLow, cannyHigh)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(edges.a, edges.b, &diff)

	return diff.Mean().Val1 / 255.0, nil
}
