package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"promptarena/embedding"
	"promptarena/metrics"
	"promptarena/similarity"
	"promptarena/types"
)

func pngOf(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			if (x+y)%5 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
			} else {
				img.SetNRGBA(x, y, c)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func newTestServer(t *testing.T, semantic *embedding.Semantic) (*Server, *metrics.Prometheus) {
	t.Helper()
	m := metrics.NewPrometheusMetrics()
	scorer, err := similarity.NewScorer(similarity.WithObserver(m))
	require.NoError(t, err)
	return NewServer(scorer, m, semantic), m
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealthAndMetricList(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()

	rec := do(t, h, "GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "GET", "/api/v1/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Metrics []string           `json:"metrics"`
		Weights map[string]float64 `json:"weights"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, similarity.MetricNames(), body.Metrics)
	assert.InDelta(t, 0.30, body.Weights["structural"], 1e-12)
}

func TestCompare(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()
	red := pngOf(t, color.NRGBA{200, 30, 30, 255})
	blue := pngOf(t, color.NRGBA{30, 30, 200, 255})

	body, ct := multipartBody(t, map[string][]byte{"image1": red, "image2": red}, nil)
	rec := do(t, h, "POST", "/api/v1/compare?metric=pixel", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var same CompareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &same))
	assert.Equal(t, "pixel", same.Metric)
	assert.InDelta(t, 0, same.Loss, 1e-9)
	assert.InDelta(t, 1, same.Similarity, 1e-9)

	body, ct = multipartBody(t, map[string][]byte{"image1": red, "image2": blue}, nil)
	rec = do(t, h, "POST", "/api/v1/compare", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var diff CompareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diff))
	assert.Equal(t, "combined", diff.Metric)
	assert.Greater(t, diff.Loss, 0.0)
	assert.LessOrEqual(t, diff.Loss, 1.0)

	body, ct = multipartBody(t, map[string][]byte{"image1": red, "image2": blue}, nil)
	rec = do(t, h, "POST", "/api/v1/compare?weights=pixel=1", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var weighted CompareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &weighted))
	a, err := png.Decode(bytes.NewReader(red))
	require.NoError(t, err)
	b, err := png.Decode(bytes.NewReader(blue))
	require.NoError(t, err)
	expected, err := similarity.PixelColorLoss(a, b)
	require.NoError(t, err)
	assert.InDelta(t, expected, weighted.Loss, 1e-9)
}

func TestCompareErrors(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()
	red := pngOf(t, color.NRGBA{200, 30, 30, 255})

	body, ct := multipartBody(t, map[string][]byte{"image1": red, "image2": red}, nil)
	rec := do(t, h, "POST", "/api/v1/compare?metric=colour", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrTypeInvalidMetric, decodeError(t, rec).Type)

	body, ct = multipartBody(t, map[string][]byte{"image1": red}, nil)
	rec = do(t, h, "POST", "/api/v1/compare", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, ErrTypeInvalidInput, apiErr.Type)
	assert.Contains(t, apiErr.Message, "image2")

	body, ct = multipartBody(t, map[string][]byte{"image1": red, "image2": []byte("garbage")}, nil)
	rec = do(t, h, "POST", "/api/v1/compare", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrTypeInvalidInput, decodeError(t, rec).Type)

	body, ct = multipartBody(t, map[string][]byte{"image1": red, "image2": red}, nil)
	rec = do(t, h, "POST", "/api/v1/compare?weights=combined=1", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrTypeInvalidWeights, decodeError(t, rec).Type)

	rec = do(t, h, "POST", "/api/v1/compare", bytes.NewReader([]byte("{}")), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "GET", "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `promptarena_compare_requests_total{metric="unknown",outcome="error"} 1`)
}

func TestCompareDetailed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()
	red := pngOf(t, color.NRGBA{200, 30, 30, 255})
	green := pngOf(t, color.NRGBA{30, 200, 30, 255})

	body, ct := multipartBody(t, map[string][]byte{"image1": red, "image2": green}, nil)
	rec := do(t, h, "POST", "/api/v1/compare/detailed", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report types.SimilarityReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.InDelta(t, 1, report.OverallLoss+report.OverallSimilarity, 1e-9)
	require.Len(t, report.Components, len(similarity.CoreMetrics))
	pixel := report.Components["pixel"]
	assert.Equal(t, "pixel_color", pixel.Label)
	assert.InDelta(t, 1, pixel.Score+pixel.Loss, 1e-9)

	rec = do(t, h, "GET", "/metrics", nil, "")
	assert.Contains(t, rec.Body.String(), "promptarena_metric_duration_seconds_count")
}

type fixedEncoder struct{}

func (fixedEncoder) EncodeImage(img image.Image) ([]float32, error) {
	r, g, b, _ := img.At(1, 1).RGBA()
	return []float32{float32(r), float32(g), float32(b)}, nil
}

func (fixedEncoder) EncodeText(text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fixedEncoder) Close() error { return nil }

func TestCompareSemantic(t *testing.T) {
	red := pngOf(t, color.NRGBA{200, 0, 0, 255})
	green := pngOf(t, color.NRGBA{0, 200, 0, 255})

	off, _ := newTestServer(t, nil)
	body, ct := multipartBody(t, map[string][]byte{"image1": red, "image2": green}, nil)
	rec := do(t, off.Routes(), "POST", "/api/v1/compare/semantic", body, ct)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrTypeUnavailable, decodeError(t, rec).Type)

	handle := embedding.NewHandle(func() (embedding.Encoder, error) { return fixedEncoder{}, nil })
	on, _ := newTestServer(t, embedding.NewSemantic(handle))
	h := on.Routes()

	body, ct = multipartBody(t, map[string][]byte{"image1": red, "image2": green}, nil)
	rec = do(t, h, "POST", "/api/v1/compare/semantic", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SemanticResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0, resp.Similarity, 1e-6)

	body, ct = multipartBody(t, map[string][]byte{"image1": red}, map[string]string{"text": "a red square"})
	rec = do(t, h, "POST", "/api/v1/compare/semantic", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 1, resp.Similarity, 1e-6)
	assert.Equal(t, "a red square", resp.Text)
}

func TestListenAndServeStops(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
