package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"promptarena/imageprocessor"
	"promptarena/logging"
	"promptarena/signalhandler"
	"promptarena/similarity"
)

var errNotDirectory = errors.New("not a directory")

// rankTarget is the target image and its perceptual hash
type rankTarget struct {
	img    image.Image
	hash   imageprocessor.Hash
	hashed bool
}

// RankFolder scores every loadable image under options.FolderPath against
// target and returns them ordered by ascending loss. Files that fail to load
// or score are counted in Errors and left out of Images. When ctx is canceled
// the images scored so far are returned together with ctx.Err().
func RankFolder(ctx context.Context, target image.Image, options RankOptions) (*RankResult, error) {
	if err := checkFolder(options.FolderPath); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", similarity.ErrInvalidInput)
	}
	if options.Scorer == nil {
		scorer, err := similarity.NewScorer()
		if err != nil {
			return nil, err
		}
		options.Scorer = scorer
	}
	maxWorkers := options.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = signalhandler.GetOptimalProcs()
	}

	rt := &rankTarget{img: target}
	if h, err := imageprocessor.PerceptualHash(target); err == nil {
		rt.hash, rt.hashed = h, true
	} else {
		logging.LogWarning("Cannot hash target, hash distances disabled: %v", err)
	}

	registry := imageprocessor.NewImageLoaderRegistry()
	fileStats := countFilesToProcess(registry, options)
	PrintStartupInfo(options.Progress, fileStats, options)

	var wg sync.WaitGroup
	resultsChan := make(chan ProcessImageResult, 100)
	semaphore := make(chan struct{}, maxWorkers)
	tracker := NewProgressTracker(fileStats, options.Progress, resultsChan)

	startTime := time.Now()
	walkErr := walkAndScoreFiles(ctx, registry, rt, options, &wg, resultsChan, semaphore)

	wg.Wait()
	close(resultsChan)
	tracker.Stop()

	ranked, processed, errCount := tracker.snapshot()
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Loss != ranked[j].Loss {
			return ranked[i].Loss < ranked[j].Loss
		}
		return ranked[i].Path < ranked[j].Path
	})
	if options.Limit > 0 && len(ranked) > options.Limit {
		ranked = ranked[:options.Limit]
	}

	result := &RankResult{
		Images:    ranked,
		Processed: processed,
		Errors:    errCount,
		Elapsed:   time.Since(startTime),
	}
	PrintCompletionStats(options.Progress, result)

	if walkErr != nil {
		return result, walkErr
	}
	return result, ctx.Err()
}

// walkAndScoreFiles traverses the directory and scores each file on a
// bounded set of goroutines
func walkAndScoreFiles(ctx context.Context, registry *imageprocessor.ImageLoaderRegistry, target *rankTarget, options RankOptions,
	wg *sync.WaitGroup, resultsChan chan<- ProcessImageResult, semaphore chan struct{}) error {

	return filepath.Walk(options.FolderPath, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil || info.IsDir() {
			if err != nil && options.DebugMode {
				logging.LogError("Error accessing path %s: %v", path, err)
			}
			return nil
		}
		if !registry.CanLoadFile(path) {
			return nil
		}

		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			resultsChan <- scoreImage(registry, target, p, options)
		}(path)
		return nil
	})
}

// scoreImage loads one file and scores it against the target
func scoreImage(registry *imageprocessor.ImageLoaderRegistry, target *rankTarget, path string, options RankOptions) ProcessImageResult {
	result := ProcessImageResult{
		Path:         path,
		Format:       imageprocessor.GetFileFormat(path),
		HashDistance: -1,
	}

	img, err := registry.LoadImage(path)
	if err != nil {
		result.Error = fmt.Errorf("failed to load image %s: %w", path, err)
		return result
	}

	loss, err := options.Scorer.Loss(target.img, img, options.Metric)
	if err != nil {
		result.Error = fmt.Errorf("failed to score image %s: %w", path, err)
		return result
	}
	result.Loss = loss

	if hash, err := imageprocessor.PerceptualHash(img); err == nil {
		result.Hash = hash.String()
		if target.hashed {
			result.HashDistance = imageprocessor.HammingDistance(target.hash, hash)
		}
	} else if options.DebugMode {
		logging.DebugLog("Cannot hash %s: %v", path, err)
	}

	return result
}
