// Package page turns a captured document into bounded, resumable content
// windows, and extracts the link list that accompanies the first window.
package page

// Window is one bounded slice of a document's text. Invariants:
// Offset+len([]rune(Text)) <= TotalLength, and IsTruncated is true iff
// content remains beyond the returned slice. A caller resumes at
// Offset + returned length.
type Window struct {
	Text        string
	IsTruncated bool
	Offset      int
	TotalLength int
}

// Slice returns up to max characters of fullText starting at offset.
// offset is clamped to [0, len(fullText)] and counted in characters (runes)
// so a window never splits a multi-byte sequence. Produced fresh per
// request; nothing is cached, so repeated requests at the same offset may
// differ if the underlying page changed.
func Slice(fullText string, offset, max int) Window {
	runes := []rune(fullText)
	total := len(runes)

	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	if max < 0 {
		max = 0
	}

	end := offset + max
	if end > total {
		end = total
	}

	return Window{
		Text:        string(runes[offset:end]),
		IsTruncated: end < total,
		Offset:      offset,
		TotalLength: total,
	}
}
