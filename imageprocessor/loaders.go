// Package imageprocessor decodes and encodes the images that get scored.
package imageprocessor

import (
	"errors"
	"fmt"
	"image"
	"os"
)

var (
	// ErrUnsupportedFormat is returned when no loader handles a file
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrDecode is returned when bytes cannot be decoded as an image
	ErrDecode = errors.New("failed to decode image")
)

// ImageLoader interface defines methods for image loading
type ImageLoader interface {
	// CanLoad determines if this loader can handle the given file
	CanLoad(path string) bool

	// LoadImage loads an image from disk
	LoadImage(path string) (image.Image, error)
}

// BaseImageLoader provides common functionality for all image loaders
type BaseImageLoader struct {
	// Formats this loader can handle
	SupportedFormats []FormatType
}

// CanLoad checks if this loader supports the file's format
func (l *BaseImageLoader) CanLoad(path string) bool {
	format := GetFileFormat(path)
	for _, supported := range l.SupportedFormats {
		if format == supported {
			return fileExists(path)
		}
	}
	return false
}

// fileExists checks if a file exists and is accessible
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newImageLoadError creates a standardized error for image loading failures
func newImageLoadError(path string, err error) error {
	return fmt.Errorf("failed to load image %s: %w", path, err)
}
