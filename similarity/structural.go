package similarity

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
)

// structuralLoss is 1 - SSIM of the BT.601 luma at 224x224.
func structuralLoss(a, b image.Image) (float64, error) {
	p, err := resizedPair(a, b, WorkingSize)
	if err != nil {
		return 0, err
	}
	defer p.Close()

	g := p.gray()
	defer g.Close()
	f := g.unit()
	defer f.Close()

	score, err := ssim(f.a, f.b)
	if err != nil {
		return 0, err
	}
	return 1 - score, nil
}

// ssim computes the mean structural similarity of two float64 images in
// [0,1] using a uniform 7x7 window and sample covariances. Pixels closer than
// half a window to the border are excluded from the mean.
func ssim(x, y gocv.Mat) (float64, error) {
	win := image.Pt(ssimWindow, ssimWindow)
	np := float64(ssimWindow * ssimWindow)
	covNorm := np / (np - 1)
	c1 := ssimK1 * ssimK1
	c2 := ssimK2 * ssimK2

	xx, yy, xy := gocv.NewMat(), gocv.NewMat(), gocv.NewMat()
	defer xx.Close()
	defer yy.Close()
	defer xy.Close()
	gocv.Multiply(x, x, &xx)
	gocv.Multiply(y, y, &yy)
	gocv.Multiply(x, y, &xy)

	filtered := make([][]float64, 5)
	for i, src := range []gocv.Mat{x, y, xx, yy, xy} {
		dst := gocv.NewMat()
		gocv.Blur(src, &dst, win)
		vals, err := dst.DataPtrFloat64()
		if err != nil {
			dst.Close()
			return 0, fmt.Errorf("reading filtered window: %w", err)
		}
		filtered[i] = append([]float64(nil), vals...)
		dst.Close()
	}
	ux, uy, uxx, uyy, uxy := filtered[0], filtered[1], filtered[2], filtered[3], filtered[4]

	rows, cols := x.Rows(), x.Cols()
	pad := (ssimWindow - 1) / 2
	var sum float64
	var n int
	for r := pad; r < rows-pad; r++ {
		for c := pad; c < cols-pad; c++ {
			i := r*cols + c
			mx, my := ux[i], uy[i]
			vx := covNorm * (uxx[i] - mx*mx)
			vy := covNorm * (uyy[i] - my*my)
			vxy := covNorm * (uxy[i] - mx*my)

			num := (2*mx*my + c1) * (2*vxy + c2)
			den := (mx*mx + my*my + c1) * (vx + vy + c2)
			sum += num / den
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: image smaller than the %dx%d window", ErrInvalidInput, ssimWindow, ssimWindow)
	}
	return sum / float64(n), nil
}
