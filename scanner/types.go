package scanner

import (
	"image"
	"io"
	"sync"
	"time"

	"promptarena/imageprocessor"
	"promptarena/similarity"
	"promptarena/types"
)

// LossScorer scores a candidate against the target. *similarity.Scorer
// satisfies it.
type LossScorer interface {
	Loss(a, b image.Image, m similarity.Metric) (float64, error)
}

// RankOptions defines the options for ranking a folder
type RankOptions struct {
	FolderPath string
	Metric     similarity.Metric
	Scorer     LossScorer // nil uses the default weights
	MaxWorkers int        // 0 uses signalhandler.GetOptimalProcs
	Limit      int        // keep only the best N results when > 0
	Progress   io.Writer  // nil disables the progress line
	DebugMode  bool
}

// ProcessImageResult holds the result of scoring one file
type ProcessImageResult struct {
	Path         string
	Format       imageprocessor.FormatType
	Loss         float64
	Hash         string
	HashDistance int
	Error        error
}

// RankResult is the outcome of RankFolder
type RankResult struct {
	Images    []types.RankedImage
	Processed int
	Errors    int
	Elapsed   time.Duration
}

// FileStats tracks information about files to be processed
type FileStats struct {
	totalFiles int
	byFormat   map[imageprocessor.FormatType]int
}

// ProgressTracker collects results and reports progress of a ranking run
type ProgressTracker struct {
	processed  int
	errors     int
	totalFiles int
	ranked     []types.RankedImage
	out        io.Writer
	ticker     *time.Ticker
	done       chan bool
	finished   chan struct{}
	mu         sync.Mutex
}
