package llm

import (
	"context"

	"promptarena/logging"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ChatCompletion sends the system prompt and user text at temperature 0 and
// returns the reply with its completion token count.
func (c *Client) ChatCompletion(ctx context.Context, systemPrompt, userText string) (string, int, error) {
	req := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		Temperature: 0,
		MaxTokens:   c.cfg.MaxTokens,
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		logging.LogError("Chat completion failed: %v", err)
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", 0, ErrEmptyResponse
	}

	logging.DebugLog("Chat completion used %d tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, resp.Usage.CompletionTokens, nil
}
