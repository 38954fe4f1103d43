package server

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"promptarena/embedding"
	"promptarena/imageprocessor"
	"promptarena/logging"
	"promptarena/similarity"
	"promptarena/utils"
)

var errBadUpload = errors.New("bad upload")

// CompareResponse is the body of a single-metric comparison
type CompareResponse struct {
	Metric     string  `json:"metric"`
	Loss       float64 `json:"loss"`
	Similarity float64 `json:"similarity"`
}

// SemanticResponse is the body of an embedding comparison
type SemanticResponse struct {
	Similarity float64 `json:"similarity"`
	Text       string  `json:"text,omitempty"`
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": similarity.MetricNames(),
		"weights": s.scorer.Weights(),
	})
}

// readImage decodes one multipart file field
func readImage(r *http.Request, field string) (image.Image, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field %q: %v", errBadUpload, field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", errBadUpload, field, err)
	}
	img, format, err := imageprocessor.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if imageprocessor.ParseFormat(format) == imageprocessor.FormatUnknown {
		logging.DebugLog("Upload %q decoded by OpenCV fallback", field)
	}
	return img, nil
}

func readImagePair(w http.ResponseWriter, r *http.Request) (image.Image, image.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	a, err := readImage(r, "image1")
	if err != nil {
		return nil, nil, err
	}
	b, err := readImage(r, "image2")
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// queryWeights parses the optional weights parameter
func queryWeights(r *http.Request) (similarity.Weights, error) {
	raw := r.URL.Query().Get("weights")
	if raw == "" {
		return nil, nil
	}
	return utils.ParseWeights(raw)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("metric")
	if name == "" {
		name = similarity.MetricCombined.String()
	}
	m, err := similarity.ParseMetric(name)
	if err != nil {
		s.metrics.ObserveRequest("unknown", false)
		s.writeError(w, r, err)
		return
	}
	weights, err := queryWeights(r)
	if err != nil {
		s.metrics.ObserveRequest(m.String(), false)
		s.writeError(w, r, err)
		return
	}

	a, b, err := readImagePair(w, r)
	if err != nil {
		s.metrics.ObserveRequest(m.String(), false)
		s.writeError(w, r, err)
		return
	}

	var loss float64
	if m == similarity.MetricCombined && weights != nil {
		loss, _, err = s.scorer.CombinedWith(a, b, weights)
	} else {
		loss, err = s.scorer.Loss(a, b, m)
	}
	s.metrics.ObserveRequest(m.String(), err == nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, CompareResponse{
		Metric:     m.String(),
		Loss:       loss,
		Similarity: 1 - loss,
	})
}

func (s *Server) handleCompareDetailed(w http.ResponseWriter, r *http.Request) {
	weights, err := queryWeights(r)
	if err != nil {
		s.metrics.ObserveRequest("detailed", false)
		s.writeError(w, r, err)
		return
	}
	a, b, err := readImagePair(w, r)
	if err != nil {
		s.metrics.ObserveRequest("detailed", false)
		s.writeError(w, r, err)
		return
	}

	overall, breakdown, err := s.scorer.CombinedWith(a, b, weights)
	s.metrics.ObserveRequest("detailed", err == nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, similarity.NewReport(overall, breakdown))
}

// handleCompareSemantic compares image1 with image2, or with the "text" form
// value when one is given instead of image2
func (s *Server) handleCompareSemantic(w http.ResponseWriter, r *http.Request) {
	if s.semantic == nil {
		s.writeError(w, r, fmt.Errorf("semantic comparison: %w", embedding.ErrDisabled))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadUpload, err))
		return
	}
	a, err := readImage(r, "image1")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var sim float64
	text := r.FormValue("text")
	if text != "" {
		sim, err = s.semantic.TextImageSimilarity(text, a)
	} else {
		var b image.Image
		if b, err = readImage(r, "image2"); err != nil {
			s.writeError(w, r, err)
			return
		}
		sim, err = s.semantic.ImageSimilarity(a, b)
	}
	s.metrics.ObserveRequest("semantic", err == nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SemanticResponse{Similarity: sim, Text: text})
}
