package similarity

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	hogOrientations = 8
	hogCellSize     = 16
	hogEps          = 1e-5
	hogClip         = 0.2
)

// featureLoss is the cosine distance between HOG descriptors of the 128x128
// luma images.
func featureLoss(a, b image.Image) (float64, error) {
	p, err := resizedPair(a, b, FeatureSize)
	if err != nil {
		return 0, err
	}
	defer p.Close()

	g := p.gray()
	defer g.Close()

	rows, cols := g.a.Rows(), g.a.Cols()
	da := HOG(grayValues(g.a), rows, cols)
	db := HOG(grayValues(g.b), rows, cols)
	return cosineDistance(da, db), nil
}

// HOG computes a histogram of oriented gradients over a row-major luma grid:
// 8 unsigned orientations, 16x16 pixel cells, one cell per block and L2-Hys
// block normalization. Pixels that do not fill a whole cell are ignored.
func HOG(gray []float64, rows, cols int) []float64 {
	cellsY, cellsX := rows/hogCellSize, cols/hogCellSize
	hist := make([]float64, cellsY*cellsX*hogOrientations)
	if cellsY == 0 || cellsX == 0 {
		return hist
	}

	binWidth := 180.0 / hogOrientations
	for r := 0; r < cellsY*hogCellSize; r++ {
		for c := 0; c < cellsX*hogCellSize; c++ {
			var gr, gc float64
			if r > 0 && r < rows-1 {
				gr = gray[(r+1)*cols+c] - gray[(r-1)*cols+c]
			}
			if c > 0 && c < cols-1 {
				gc = gray[r*cols+c+1] - gray[r*cols+c-1]
			}
			mag := math.Hypot(gr, gc)
			if mag == 0 {
				continue
			}
			ori := math.Mod(math.Atan2(gr, gc)*180/math.Pi, 180)
			if ori < 0 {
				ori += 180
			}
			bin := int(ori / binWidth)
			if bin >= hogOrientations {
				bin = hogOrientations - 1
			}
			cell := (r/hogCellSize)*cellsX + c/hogCellSize
			hist[cell*hogOrientations+bin] += mag
		}
	}

	area := float64(hogCellSize * hogCellSize)
	for i := range hist {
		hist[i] /= area
	}
	for i := 0; i < len(hist); i += hogOrientations {
		l2hys(hist[i : i+hogOrientations])
	}
	return hist
}

func l2hys(block []float64) {
	scale := func() {
		n := math.Sqrt(floats.Dot(block, block) + hogEps*hogEps)
		floats.Scale(1/n, block)
	}
	scale()
	for i, v := range block {
		if v > hogClip {
			block[i] = hogClip
		}
	}
	scale()
}

// cosineDistance returns 1 - cos(a, b) clamped to [0,1]. Two empty
// descriptors are identical, one empty descriptor is maximally different.
func cosineDistance(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	switch {
	case na == 0 && nb == 0:
		return 0
	case na == 0 || nb == 0:
		return 1
	}
	d := 1 - floats.Dot(a, b)/(na*nb)
	if math.IsNaN(d) {
		return degenerateLoss
	}
	return clamp01(d)
}
