package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Special token ids shared by the BERT uncased vocabularies.
const (
	unkID = 100
	clsID = 101
	sepID = 102
)

// Tokenizer is a WordPiece tokenizer driven by the vocabulary in a
// HuggingFace tokenizer.json.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the "model.vocab" table from a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer %s: %w", path, err)
	}
	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer %s: %w", path, err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s: empty vocabulary", path)
	}
	return &Tokenizer{vocab: file.Model.Vocab}, nil
}

// Tokenize converts text to vocabulary ids, without [CLS] and [SEP].
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		for _, piece := range t.wordPiece(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, unkID)
			}
		}
	}
	return ids
}

// Encode builds the fixed-length model inputs for text: [CLS] tokens [SEP]
// followed by padding. Tokens beyond seqLen-2 are dropped.
func (t *Tokenizer) Encode(text string, seqLen int) (inputIDs, attention []int64) {
	inputIDs = make([]int64, seqLen)
	attention = make([]int64, seqLen)

	tokens := t.Tokenize(text)
	if len(tokens) > seqLen-2 {
		tokens = tokens[:seqLen-2]
	}

	inputIDs[0] = clsID
	attention[0] = 1
	for i, id := range tokens {
		inputIDs[i+1] = id
		attention[i+1] = 1
	}
	end := len(tokens) + 1
	inputIDs[end] = sepID
	attention[end] = 1
	return inputIDs, attention
}

// wordPiece splits word greedily into the longest known prefixes.
// Continuations carry the "##" marker; an unmatched byte becomes [UNK].
func (t *Tokenizer) wordPiece(word string) []string {
	var pieces []string
	for start := 0; start < len(word); {
		end := len(word)
		for ; end > start; end-- {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				pieces = append(pieces, sub)
				break
			}
		}
		if end == start {
			pieces = append(pieces, "[UNK]")
			start++
			continue
		}
		start = end
	}
	return pieces
}
