package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"promptarena/imageprocessor"
	"promptarena/logging"
)

type imageRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	ImageSize string `json:"image_size,omitempty"`
	Size      string `json:"size,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	N         int    `json:"n,omitempty"`
}

type imageItem struct {
	URL     string `json:"url"`
	B64JSON string `json:"b64_json"`
}

// Both the OpenAI ("data") and SiliconFlow ("images") layouts are accepted
type imageResponse struct {
	Data   []imageItem `json:"data"`
	Images []imageItem `json:"images"`
}

// GenerateImage renders prompt with the configured image model. The result
// may have any dimensions.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (image.Image, error) {
	req := imageRequest{
		Model:     c.cfg.ImageModel,
		Prompt:    prompt,
		ImageSize: c.cfg.ImageSize,
		Size:      c.cfg.ImageSize,
		BatchSize: 1,
		N:         1,
	}

	var resp imageResponse
	if err := c.postJSON(ctx, "/images/generations", req, &resp); err != nil {
		logging.LogError("Image generation failed: %v", err)
		return nil, err
	}

	items := append(resp.Data, resp.Images...)
	if len(items) == 0 {
		return nil, ErrEmptyResponse
	}
	item := items[0]

	var data []byte
	var err error
	switch {
	case item.B64JSON != "":
		data, err = base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 image: %w", err)
		}
	case item.URL != "":
		data, err = c.fetch(ctx, item.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrEmptyResponse
	}

	img, format, err := imageprocessor.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	logging.DebugLog("Generated %s image %v", format, img.Bounds().Size())
	return img, nil
}
