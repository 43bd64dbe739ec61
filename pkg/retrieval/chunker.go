package retrieval

import (
	"fmt"
	"strings"
)

// Chunk is one indexable slice of a guideline document.
type Chunk struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Chunker splits guideline documents into overlapping chunks, breaking at
// paragraph or sentence boundaries where possible.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

func NewChunker() *Chunker {
	return &Chunker{ChunkSize: 2000, ChunkOverlap: 50, MinChunkSize: 100}
}

// ChunkText splits text into chunks carrying the given base metadata.
func (c *Chunker) ChunkText(text, docID string, metadata map[string]string) []Chunk {
	text = strings.TrimSpace(text)
	var chunks []Chunk
	start := 0
	index := 0

	for start < len(text) {
		end := start + c.ChunkSize
		if end < len(text) {
			end = c.findBreak(text, start, end)
		} else {
			end = len(text)
		}

		content := strings.TrimSpace(text[start:end])
		if len(content) >= c.MinChunkSize {
			md := map[string]string{
				"docId":      docID,
				"chunkIndex": fmt.Sprintf("%d", index),
			}
			for k, v := range metadata {
				md[k] = v
			}
			chunks = append(chunks, Chunk{
				ID:       fmt.Sprintf("%s_chunk_%d", docID, index),
				Content:  content,
				Metadata: md,
			})
			index++
		}

		next := end - c.ChunkOverlap
		if next <= start {
			break
		}
		start = next
	}
	return chunks
}

// findBreak looks backward from end for a paragraph break, then a sentence
// end, then a line break. The break never moves before the chunk midpoint.
func (c *Chunker) findBreak(text string, start, end int) int {
	floor := start + c.ChunkSize/2
	if floor < 0 {
		floor = 0
	}
	for i := end; i > floor; i-- {
		if i < len(text)-1 && text[i] == '\n' && text[i+1] == '\n' {
			return i + 2
		}
	}
	for i := end; i > floor; i-- {
		if i < len(text)-1 && (text[i] == '.' || text[i] == '!' || text[i] == '?') {
			if text[i+1] == ' ' || text[i+1] == '\n' {
				return i + 1
			}
		}
	}
	for i := end; i > floor; i-- {
		if i < len(text) && text[i] == '\n' {
			return i + 1
		}
	}
	if end > len(text) {
		return len(text)
	}
	return end
}
