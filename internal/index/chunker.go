package index

// Chunk is a contiguous byte window of a source file.
type Chunk struct {
	Start int // byte offset, inclusive
	End   int // byte offset, exclusive
	Text  string
}

// ChunkText splits text into overlapping byte windows of up to size bytes.
// Consecutive windows advance by size-overlap bytes; the final window is
// clipped to the text length. A non-positive size yields the whole text as
// a single chunk. An overlap >= size is clamped to size-1 so the windows
// always advance.
func ChunkText(text string, size, overlap int) []Chunk {
	if len(text) == 0 {
		return nil
	}
	if size <= 0 || size >= len(text) {
		return []Chunk{{Start: 0, End: len(text), Text: text}}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	step := size - overlap
	var chunks []Chunk
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, Chunk{Start: start, End: end, Text: text[start:end]})
		if end == len(text) {
			break
		}
	}
	return chunks
}
