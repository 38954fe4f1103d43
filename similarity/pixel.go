package similarity

import (
	"image"

	"gocv.io/x/gocv"
)

// maxChannelSum is the largest per-pixel sum of absolute channel differences.
const maxChannelSum = 3 * 255.0

// pixelColorLoss is the mean absolute RGB difference at 224x224. Channel
// differences are summed per pixel so that black against white scores 1.
func pixelColorLoss(a, b image.Image) (float64, error) {
	p, err := resizedPair(a, b, WorkingSize)
	if err != nil {
		return 0, err
	}
	defer p.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(p.a, p.b, &diff)

	mean := diff.Mean()
	return (mean.Val1 + mean.Val2 + mean.Val3) / maxChannelSum, nil
}
