// Package chunker 把页文本切分为带重叠的词窗口。
package chunker

import (
	"fmt"
	"strings"

	"policyqa-go/internal/model"
)

// Chunker 按词数滑动窗口切分文本，窗口每次前进 windowWords-overlapWords 个词。
type Chunker struct {
	windowWords  int
	overlapWords int
}

// New 创建 Chunker。overlapWords >= windowWords 时窗口无法前进，直接拒绝。
func New(windowWords, overlapWords int) (*Chunker, error) {
	if windowWords <= 0 {
		return nil, fmt.Errorf("%w: window_words must be positive, got %d", model.ErrConfigurationInvalid, windowWords)
	}
	if overlapWords < 0 {
		return nil, fmt.Errorf("%w: overlap_words must not be negative, got %d", model.ErrConfigurationInvalid, overlapWords)
	}
	if overlapWords >= windowWords {
		return nil, fmt.Errorf("%w: overlap_words (%d) must be smaller than window_words (%d)",
			model.ErrConfigurationInvalid, overlapWords, windowWords)
	}
	return &Chunker{windowWords: windowWords, overlapWords: overlapWords}, nil
}

// Chunk 逐页切分，ChunkID 为页内窗口序号。空页不产生分块。
func (c *Chunker) Chunk(documentName string, pages []model.Page) []model.Chunk {
	var out []model.Chunk
	for _, page := range pages {
		for i, text := range c.SplitWords(page.Text) {
			out = append(out, model.Chunk{
				DocumentName: documentName,
				Page:         page.Number,
				ChunkID:      i,
				Text:         text,
			})
		}
	}
	return out
}

// SplitWords 对单段文本做窗口切分。最后一个窗口可以不满，
// 且当某个窗口已覆盖到最后一个词时立即结束，不会产生重复的尾窗口。
func (c *Chunker) SplitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var windows []string
	start := 0
	for start < len(words) {
		end := start + c.windowWords
		if end > len(words) {
			end = len(words)
		}
		if window := strings.TrimSpace(strings.Join(words[start:end], " ")); window != "" {
			windows = append(windows, window)
		}
		if end == len(words) {
			break
		}
		start = end - c.overlapWords
	}
	return windows
}
