package embedding

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	clipContextLength = 77
	clipStartToken    = 49406
	clipEndToken      = 49407
)

// CLIPTokenizer is a word-level approximation of the CLIP BPE tokenizer:
// whole words found in the vocabulary map to one id, anything else falls
// back to per-character ids.
type CLIPTokenizer struct {
	vocab map[string]int
}

// LoadCLIPTokenizer reads a Hugging Face tokenizer.json
func LoadCLIPTokenizer(path string) (*CLIPTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer file: %w", err)
	}
	return ParseCLIPTokenizer(data)
}

// ParseCLIPTokenizer decodes the vocabulary from tokenizer.json contents
func ParseCLIPTokenizer(data []byte) (*CLIPTokenizer, error) {
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer JSON: %w", err)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer has an empty vocabulary")
	}
	return &CLIPTokenizer{vocab: doc.Model.Vocab}, nil
}

// Encode returns exactly 77 token ids: start token, text tokens, end token,
// then zero padding. Overlong text is truncated.
func (t *CLIPTokenizer) Encode(text string) []int {
	tokens := make([]int, clipContextLength)
	tokens[0] = clipStartToken
	n := 1
	// leave room for the end token
	limit := clipContextLength - 1

	for _, word := range strings.Fields(strings.ToLower(text)) {
		if n >= limit {
			break
		}
		if id, ok := t.vocab[word+"</w>"]; ok {
			tokens[n] = id
			n++
			continue
		}
		for _, ch := range word {
			if n >= limit {
				break
			}
			if id, ok := t.vocab[string(ch)]; ok {
				tokens[n] = id
				n++
			}
		}
	}
	tokens[n] = clipEndToken
	return tokens
}
