package scanner

import (
	"fmt"
	"io"
	"time"

	"promptarena/logging"
	"promptarena/types"
)

// NewProgressTracker initializes the progress tracker. Results are consumed
// from resultsChan until it is closed.
func NewProgressTracker(stats FileStats, out io.Writer, resultsChan <-chan ProcessImageResult) *ProgressTracker {
	if out == nil {
		out = io.Discard
	}
	tracker := &ProgressTracker{
		ticker:     time.NewTicker(500 * time.Millisecond),
		done:       make(chan bool),
		finished:   make(chan struct{}),
		totalFiles: stats.totalFiles,
		out:        out,
	}

	go tracker.displayProgress()
	go tracker.processResults(resultsChan)

	return tracker
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			p.printLine()
			p.mu.Unlock()
		}
	}
}

func (p *ProgressTracker) printLine() {
	if p.errors > 0 {
		fmt.Fprintf(p.out, "\rProgress: %d/%d (Errors: %d)", p.processed, p.totalFiles, p.errors)
	} else {
		fmt.Fprintf(p.out, "\rProgress: %d/%d", p.processed, p.totalFiles)
	}
}

// processResults updates the tracker state based on scoring results
func (p *ProgressTracker) processResults(resultsChan <-chan ProcessImageResult) {
	defer close(p.finished)
	for result := range resultsChan {
		p.mu.Lock()
		p.processed++
		if result.Error != nil {
			p.errors++
		} else {
			p.ranked = append(p.ranked, types.RankedImage{
				Path:         result.Path,
				Format:       string(result.Format),
				Hash:         result.Hash,
				HashDistance: result.HashDistance,
				Loss:         result.Loss,
			})
		}
		logging.LogImageScored(result.Path, result.Loss, result.Error)
		p.mu.Unlock()
	}
}

// Stop waits for the results channel to drain and ends the progress display.
// The results channel must be closed first.
func (p *ProgressTracker) Stop() {
	<-p.finished
	p.ticker.Stop()
	p.done <- true

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalFiles > 0 {
		p.printLine()
		fmt.Fprintln(p.out)
	}
}

// snapshot returns the collected results and counters
func (p *ProgressTracker) snapshot() ([]types.RankedImage, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ranked := make([]types.RankedImage, len(p.ranked))
	copy(ranked, p.ranked)
	return ranked, p.processed, p.errors
}

// PrintStartupInfo displays information about the run before starting
func PrintStartupInfo(out io.Writer, stats FileStats, options RankOptions) {
	if out == nil {
		return
	}
	fmt.Fprintf(out, "Ranking images against target...\nTotal image files to score: %d\n", stats.totalFiles)
	fmt.Fprintf(out, "Metric: %s\n", options.Metric)
	if options.DebugMode {
		for format, n := range stats.byFormat {
			logging.DebugLog("Found %d %s files", n, format)
		}
	}
}

// PrintCompletionStats displays statistics after a ranking run
func PrintCompletionStats(out io.Writer, result *RankResult) {
	if out == nil {
		return
	}
	fmt.Fprintln(out, "Ranking complete.")
	fmt.Fprintf(out, "Scored %d images in %v.\n", result.Processed-result.Errors, result.Elapsed.Round(time.Millisecond))
	if result.Errors > 0 {
		fmt.Fprintf(out, "Encountered %d errors while scoring.\n", result.Errors)
		fmt.Fprintln(out, "Check the log file for details.")
	}
}
