package similarity

import (
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

func checker(w, h, square int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/square+y/square)%2 == 0 {
				img.Set(x, y, color.RGBA{230, 40, 40, 255})
			} else {
				img.Set(x, y, color.RGBA{20, 20, 200, 255})
			}
		}
	}
	return img
}

func noisy(base *image.RGBA, amplitude int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	out := image.NewRGBA(base.Bounds())
	copy(out.Pix, base.Pix)
	if amplitude == 0 {
		return out
	}
	for i := range out.Pix {
		if i%4 == 3 {
			continue
		}
		v := int(out.Pix[i]) + rng.Intn(2*amplitude+1) - amplitude
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		out.Pix[i] = uint8(v)
	}
	return out
}

var directMetrics = map[Metric]func(a, b image.Image) (float64, error){
	MetricPixel:      PixelColorLoss,
	MetricStructural: StructuralDistance,
	MetricHistogram:  HistogramDistance,
	MetricEdge:       EdgeDistance,
	MetricFeature:    FeatureDistance,
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		name    string
		want    Metric
		wantErr bool
	}{
		{"pixel", MetricPixel, false},
		{"structural", MetricStructural, false},
		{"histogram", MetricHistogram, false},
		{"edge", MetricEdge, false},
		{"feature", MetricFeature, false},
		{"combined", MetricCombined, false},
		{"bogus", 0, true},
		{"Pixel", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMetric(tt.name)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidMetric))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.String())
		})
	}
}

func TestMetricText(t *testing.T) {
	b, err := MetricFeature.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "feature", string(b))

	var m Metric
	require.NoError(t, m.UnmarshalText([]byte("edge")))
	assert.Equal(t, MetricEdge, m)
	assert.Error(t, m.UnmarshalText([]byte("nope")))

	_, err = Metric(42).MarshalText()
	assert.True(t, errors.Is(err, ErrInvalidMetric))
}

func TestIdentity(t *testing.T) {
	images := map[string]image.Image{
		"black":    solid(224, 224, color.Black),
		"gradient": gradient(300, 200),
		"checker":  checker(224, 224, 16),
	}
	for name, img := range images {
		t.Run(name, func(t *testing.T) {
			for m, fn := range directMetrics {
				loss, err := fn(img, img)
				require.NoError(t, err)
				assert.Less(t, loss, 1e-6, "%s metric", m)
			}
			loss, err := GetLoss(img, img, MetricCombined)
			require.NoError(t, err)
			assert.Less(t, loss, 1e-6)
		})
	}
}

func TestSymmetry(t *testing.T) {
	a := gradient(240, 180)
	b := checker(200, 260, 12)
	for m, fn := range directMetrics {
		ab, err := fn(a, b)
		require.NoError(t, err)
		ba, err := fn(b, a)
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-9, "%s metric", m)
	}
}

func TestBounded(t *testing.T) {
	pairs := [][2]image.Image{
		{solid(64, 64, color.Black), solid(64, 64, color.White)},
		{gradient(224, 224), checker(224, 224, 4)},
		{noisy(gradient(224, 224), 120, 7), checker(100, 300, 30)},
		{solid(10, 10, color.RGBA{255, 0, 0, 255}), gradient(500, 50)},
	}
	for i, p := range pairs {
		for m, fn := range directMetrics {
			loss, err := fn(p[0], p[1])
			require.NoError(t, err)
			assert.GreaterOrEqual(t, loss, 0.0, "pair %d %s", i, m)
			assert.LessOrEqual(t, loss, 1.0, "pair %d %s", i, m)
		}
	}
}

func TestBlackAgainstWhite(t *testing.T) {
	black := solid(224, 224, color.Black)
	white := solid(224, 224, color.White)

	loss, err := GetLossByName(black, white, "pixel")
	require.NoError(t, err)
	assert.Equal(t, 1.0, loss)

	loss, err = GetLossByName(black, black, "combined")
	require.NoError(t, err)
	assert.Less(t, loss, 1e-6)
}

func TestDifferentSizesAreComparable(t *testing.T) {
	black := solid(512, 300, color.Black)
	white := solid(64, 640, color.White)
	loss, err := PixelColorLoss(black, white)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, loss, 0.01)
}

func TestPixelMonotonicUnderNoise(t *testing.T) {
	base := solid(224, 224, color.RGBA{128, 128, 128, 255})
	prev := -1.0
	for _, amp := range []int{0, 8, 16, 32, 64, 96} {
		loss, err := PixelColorLoss(base, noisy(base, amp, 42))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, loss, prev, "amplitude %d", amp)
		prev = loss
	}
	assert.Greater(t, prev, 0.0)
}

func TestCombinerSumInvariance(t *testing.T) {
	a := gradient(224, 224)
	b := checker(224, 224, 8)

	base, _, err := CombinedSimilarity(a, b, DefaultWeights())
	require.NoError(t, err)

	for _, c := range []float64{0.01, 3.7, 1000} {
		scaled := DefaultWeights()
		for m := range scaled {
			scaled[m] *= c
		}
		got, _, err := CombinedSimilarity(a, b, scaled)
		require.NoError(t, err)
		assert.InDelta(t, base, got, 1e-12, "scale %v", c)
	}
}

func TestCombinedIsWeightedMean(t *testing.T) {
	a := gradient(224, 224)
	b := noisy(gradient(224, 224), 40, 3)

	w := Weights{MetricPixel: 1, MetricEdge: 3}
	got, breakdown, err := CombinedSimilarity(a, b, w)
	require.NoError(t, err)
	require.Len(t, breakdown, len(CoreMetrics))

	want := (breakdown[MetricPixel] + 3*breakdown[MetricEdge]) / 4
	assert.InDelta(t, want, got, 1e-12)
}

func TestNilWeightsUseDefaults(t *testing.T) {
	a := gradient(224, 224)
	b := checker(224, 224, 8)
	withNil, _, err := CombinedSimilarity(a, b, nil)
	require.NoError(t, err)
	withDefaults, _, err := CombinedSimilarity(a, b, DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, withDefaults, withNil)
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"partial", Weights{MetricPixel: 2}, false},
		{"empty", Weights{}, true},
		{"negative", Weights{MetricPixel: -1, MetricEdge: 2}, true},
		{"zero sum", Weights{MetricPixel: 0, MetricEdge: 0}, true},
		{"combined key", Weights{MetricCombined: 1}, true},
		{"nan", Weights{MetricPixel: math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidWeights))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := NewScorer(WithWeights(Weights{MetricEdge: -1}))
	assert.True(t, errors.Is(err, ErrInvalidWeights))
}

func TestDispatchMatchesDirect(t *testing.T) {
	a := gradient(224, 224)
	b := checker(224, 224, 8)
	for m, fn := range directMetrics {
		direct, err := fn(a, b)
		require.NoError(t, err)
		dispatched, err := GetLossByName(a, b, m.String())
		require.NoError(t, err)
		assert.Equal(t, direct, dispatched, "%s metric", m)
	}

	combined, _, err := CombinedSimilarity(a, b, nil)
	require.NoError(t, err)
	dispatched, err := GetLoss(a, b, MetricCombined)
	require.NoError(t, err)
	assert.Equal(t, combined, dispatched)
}

func TestDispatchRejectsUnknownMetric(t *testing.T) {
	a := gradient(32, 32)
	_, err := GetLossByName(a, a, "bogus")
	assert.True(t, errors.Is(err, ErrInvalidMetric))

	_, err = GetLoss(a, a, Metric(99))
	assert.True(t, errors.Is(err, ErrInvalidMetric))
}

func TestInvalidInput(t *testing.T) {
	good := gradient(32, 32)
	empty := image.NewRGBA(image.Rect(0, 0, 0, 10))

	_, err := GetLoss(nil, good, MetricPixel)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = GetLoss(good, empty, MetricCombined)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, _, err = CombinedSimilarity(empty, nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = GetDetailedComparison(good, nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, _, err = ResizeBoth(good, good, image.Pt(0, 10))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestReportConsistency(t *testing.T) {
	a := gradient(224, 224)
	b := noisy(checker(224, 224, 16), 30, 9)

	overall, breakdown, err := CombinedSimilarity(a, b, nil)
	require.NoError(t, err)
	report, err := GetDetailedComparison(a, b)
	require.NoError(t, err)

	assert.InDelta(t, overall, report.OverallLoss, 1e-12)
	assert.InDelta(t, 1-overall, report.OverallSimilarity, 1e-12)
	require.Len(t, report.Components, len(CoreMetrics))
	for _, m := range CoreMetrics {
		c, ok := report.Components[m.String()]
		require.True(t, ok, m.String())
		assert.InDelta(t, 1-breakdown[m], c.Score, 1e-12)
		assert.Equal(t, m.Label(), c.Label)
		assert.NotEmpty(t, c.Description)
	}
	assert.Equal(t, "color_distribution", report.Components["histogram"].Label)
}

func TestParallelMatchesSequential(t *testing.T) {
	a := gradient(224, 224)
	b := checker(224, 224, 8)

	seq, err := NewScorer(WithParallel(false))
	require.NoError(t, err)
	par, err := NewScorer(WithParallel(true))
	require.NoError(t, err)

	want, wantBreakdown, err := seq.Combined(a, b)
	require.NoError(t, err)
	got, gotBreakdown, err := par.Combined(a, b)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, wantBreakdown, gotBreakdown)
}

func TestInputsAreNotMutated(t *testing.T) {
	a := checker(224, 224, 8)
	b := gradient(224, 224)
	before := append([]uint8(nil), a.Pix...)

	_, _, err := CombinedSimilarity(a, b, nil)
	require.NoError(t, err)
	assert.Equal(t, before, a.Pix)
}

func TestToRGBAndToArray(t *testing.T) {
	img := image.NewNRGBA(image.Rect(2, 3, 4, 4))
	img.SetNRGBA(2, 3, color.NRGBA{10, 20, 30, 0})
	img.SetNRGBA(3, 3, color.NRGBA{40, 50, 60, 255})

	rgb, err := ToRGB(img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), rgb.Bounds())
	assert.Equal(t, color.NRGBA{10, 20, 30, 255}, rgb.NRGBAAt(0, 0))

	arr, err := ToArray(img)
	require.NoError(t, err)
	assert.Equal(t, []uint8{10, 20, 30, 40, 50, 60}, arr)

	arr[0] = 99
	assert.Equal(t, uint8(10), img.Pix[0])
}

func TestHOGDescriptor(t *testing.T) {
	flat := make([]float64, 128*128)
	for i := range flat {
		flat[i] = 0.5
	}
	d := HOG(flat, 128, 128)
	require.Len(t, d, 8*8*hogOrientations)
	for _, v := range d {
		assert.Zero(t, v)
	}

	ramp := make([]float64, 128*128)
	for r := 0; r < 128; r++ {
		for c := 0; c < 128; c++ {
			ramp[r*128+c] = float64(c) / 127
		}
	}
	d = HOG(ramp, 128, 128)
	// a horizontal ramp has only 0 degree gradients, which land in bin 0
	assert.Greater(t, d[0], 0.0)
	for _, v := range d {
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestCosineDistanceDegenerate(t *testing.T) {
	zero := []float64{0, 0, 0}
	v := []float64{1, 2, 3}
	assert.Equal(t, 0.0, cosineDistance(zero, zero))
	assert.Equal(t, 1.0, cosineDistance(zero, v))
	assert.Equal(t, 1.0, cosineDistance(v, zero))
	assert.InDelta(t, 0.0, cosineDistance(v, v), 1e-12)
	assert.InDelta(t, 1.0, cosineDistance([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Equal(t, 1.0, cosineDistance([]float64{1, 0}, []float64{-1, 0}))
}

func TestUniformImagesHaveZeroFeatureDistance(t *testing.T) {
	loss, err := FeatureDistance(solid(128, 128, color.Black), solid(128, 128, color.White))
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss)
}

type recordingObserver struct {
	mu        sync.Mutex
	timed     map[Metric]int
	fallbacks []Metric
}

func (r *recordingObserver) ObserveMetric(m Metric, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timed == nil {
		r.timed = make(map[Metric]int)
	}
	r.timed[m]++
}

func (r *recordingObserver) ObserveFallback(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, m)
}

func TestObserverAndFallback(t *testing.T) {
	obs := &recordingObserver{}
	s, err := NewScorer(WithObserver(obs))
	require.NoError(t, err)

	_, _, err = s.Combined(gradient(64, 64), checker(64, 64, 4))
	require.NoError(t, err)
	for _, m := range CoreMetrics {
		assert.Equal(t, 1, obs.timed[m], m.String())
	}
	assert.Equal(t, 1, obs.timed[MetricCombined])
	assert.Empty(t, obs.fallbacks)

	assert.Equal(t, degenerateLoss, s.finish(MetricStructural, math.NaN()))
	assert.Equal(t, degenerateLoss, s.finish(MetricFeature, math.Inf(-1)))
	assert.Equal(t, 0.0, s.finish(MetricFeature, -1e-15))
	assert.Equal(t, 1.0, s.finish(MetricStructural, 1.0000001))
	assert.Equal(t, []Metric{MetricStructural, MetricFeature}, obs.fallbacks)
}
