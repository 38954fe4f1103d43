package embedding

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder embeds an image as its summed RGB and text by a fixed table.
type fakeEncoder struct {
	text   map[string][]float32
	closed bool
}

func (f *fakeEncoder) EncodeImage(img image.Image) ([]float32, error) {
	b := img.Bounds()
	var r, g, bl float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr)
			g += float64(cg)
			bl += float64(cb)
		}
	}
	return []float32{float32(r), float32(g), float32(bl)}, nil
}

func (f *fakeEncoder) EncodeText(text string) ([]float32, error) {
	v, ok := f.text[text]
	if !ok {
		return nil, errors.New("unknown prompt")
	}
	return v, nil
}

func (f *fakeEncoder) Close() error {
	f.closed = true
	return nil
}

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestSemanticHigherIsMoreSimilar(t *testing.T) {
	enc := &fakeEncoder{text: map[string][]float32{
		"red": {1, 0, 0},
	}}
	s := NewSemantic(NewHandle(func() (Encoder, error) { return enc, nil }))

	red := solid(color.RGBA{255, 0, 0, 255})
	darkRed := solid(color.RGBA{120, 0, 0, 255})
	blue := solid(color.RGBA{0, 0, 255, 255})

	same, err := s.ImageSimilarity(red, darkRed)
	require.NoError(t, err)
	different, err := s.ImageSimilarity(red, blue)
	require.NoError(t, err)
	assert.Greater(t, same, different)
	assert.InDelta(t, 1.0, same, 1e-6)

	match, err := s.TextImageSimilarity("red", red)
	require.NoError(t, err)
	miss, err := s.TextImageSimilarity("red", blue)
	require.NoError(t, err)
	assert.Greater(t, match, miss)

	_, err = s.TextImageSimilarity("green", red)
	assert.Error(t, err)
	_, err = s.ImageSimilarity(nil, red)
	assert.Error(t, err)
}

func TestHandleBuildsOnce(t *testing.T) {
	var builds int32
	h := NewHandle(func() (Encoder, error) {
		atomic.AddInt32(&builds, 1)
		return &fakeEncoder{}, nil
	})
	assert.Equal(t, int32(0), atomic.LoadInt32(&builds))

	var wg sync.WaitGroup
	encoders := make([]Encoder, 8)
	for i := range encoders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			enc, err := h.Encoder()
			assert.NoError(t, err)
			encoders[i] = enc
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
	for _, enc := range encoders {
		assert.Same(t, encoders[0], enc)
	}

	require.NoError(t, h.Close())
	assert.True(t, encoders[0].(*fakeEncoder).closed)
}

func TestHandleErrorIsSticky(t *testing.T) {
	h := DisabledHandle()
	_, err := h.Encoder()
	assert.True(t, errors.Is(err, ErrDisabled))
	_, err = NewSemantic(h).ImageSimilarity(solid(color.Black), solid(color.White))
	assert.True(t, errors.Is(err, ErrDisabled))
	assert.NoError(t, h.Close())
}

func TestCloseBeforeUse(t *testing.T) {
	called := false
	h := NewHandle(func() (Encoder, error) {
		called = true
		return &fakeEncoder{}, nil
	})
	require.NoError(t, h.Close())
	_, err := h.Encoder()
	assert.True(t, errors.Is(err, ErrDisabled))
	assert.False(t, called)
}

func TestTokenizer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokenizer.json")
	doc := `{"model":{"vocab":{"a</w>":320,"cat</w>":2368,"d":67,"o":78,"g":70}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	tok, err := LoadCLIPTokenizer(path)
	require.NoError(t, err)

	ids := tok.Encode("A cat dog")
	require.Len(t, ids, clipContextLength)
	assert.Equal(t, []int{clipStartToken, 320, 2368, 67, 78, 70, clipEndToken, 0}, ids[:8])

	long := ""
	for i := 0; i < 200; i++ {
		long += "cat "
	}
	ids = tok.Encode(long)
	require.Len(t, ids, clipContextLength)
	assert.Equal(t, clipEndToken, ids[clipContextLength-1])

	_, err = ParseCLIPTokenizer([]byte(`{"model":{}}`))
	assert.Error(t, err)
	_, err = LoadCLIPTokenizer(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestPixelValues(t *testing.T) {
	tensor := pixelValues(solid(color.White))
	require.Len(t, tensor, 3*clipImageSize*clipImageSize)
	plane := clipImageSize * clipImageSize
	for ch := 0; ch < 3; ch++ {
		want := (1 - clipMean[ch]) / clipStd[ch]
		assert.InDelta(t, want, tensor[ch*plane], 0.02)
		assert.InDelta(t, want, tensor[ch*plane+plane-1], 0.02)
	}
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, normalize([]float32{0, 0}))
}
