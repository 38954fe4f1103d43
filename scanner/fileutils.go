package scanner

import (
	"os"
	"path/filepath"

	"promptarena/imageprocessor"
	"promptarena/logging"
)

// countFilesToProcess counts the files the registry can load, per format
func countFilesToProcess(registry *imageprocessor.ImageLoaderRegistry, options RankOptions) FileStats {
	stats := FileStats{byFormat: make(map[imageprocessor.FormatType]int)}

	if options.DebugMode {
		logging.DebugLog("Starting ranking on folder: %s (metric %s)", options.FolderPath, options.Metric)
	}

	filepath.Walk(options.FolderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if registry.CanLoadFile(path) {
			stats.totalFiles++
			stats.byFormat[imageprocessor.GetFileFormat(path)]++
		}
		return nil
	})

	return stats
}

// checkFolder verifies the folder exists and is a directory
func checkFolder(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "rank", Path: path, Err: errNotDirectory}
	}
	return nil
}
