// Package tail extracts the last N lines of a seekable text resource by
// scanning backward from the end, so only a fixed-size block is ever held in
// memory regardless of file size.
package tail

import (
	"fmt"
	"io"
	"strings"
)

// blockSize is how many bytes are read per backward step.
const blockSize = 4096

// Span is the byte range holding the selected lines. When Unterminated is
// set the final line has no trailing newline and Reader supplies one.
type Span struct {
	Offset       int64
	Length       int64
	Unterminated bool
}

// Size is the number of bytes Reader yields for the span.
func (s Span) Size() int64 {
	if s.Unterminated {
		return s.Length + 1
	}
	return s.Length
}

// Locate finds the start of the n-th line counted from the end of r. A final
// line without a trailing newline counts as one line. If r holds fewer than
// n lines the span covers the whole resource. n must be at least 1.
func Locate(r io.ReadSeeker, n int) (Span, error) {
	if n < 1 {
		return Span{}, fmt.Errorf("tail: line count %d < 1", n)
	}
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return Span{}, fmt.Errorf("tail: seek end: %w", err)
	}
	if size == 0 {
		return Span{}, nil
	}

	var last [1]byte
	if _, err := r.Seek(size-1, io.SeekStart); err != nil {
		return Span{}, fmt.Errorf("tail: seek: %w", err)
	}
	if _, err := io.ReadFull(r, last[:]); err != nil {
		return Span{}, fmt.Errorf("tail: read last byte: %w", err)
	}
	unterminated := last[0] != '\n'

	// The final byte is never a line start: either it terminates the last
	// line or it belongs to the unterminated last line.
	start, err := scanBack(r, size-1, n)
	if err != nil {
		return Span{}, err
	}
	return Span{Offset: start, Length: size - start, Unterminated: unterminated}, nil
}

// scanBack walks backward from end (exclusive) and returns the offset right
// after the n-th newline found, or 0 when the start of r is reached first.
func scanBack(r io.ReadSeeker, end int64, n int) (int64, error) {
	buf := make([]byte, blockSize)
	found := 0
	for end > 0 {
		chunk := int64(len(buf))
		if end < chunk {
			chunk = end
		}
		pos := end - chunk
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return 0, fmt.Errorf("tail: seek: %w", err)
		}
		if _, err := io.ReadFull(r, buf[:chunk]); err != nil {
			return 0, fmt.Errorf("tail: read at %d: %w", pos, err)
		}
		for i := chunk - 1; i >= 0; i-- {
			if buf[i] != '\n' {
				continue
			}
			found++
			if found == n {
				return pos + i + 1, nil
			}
		}
		end = pos
	}
	return 0, nil
}

// Reader returns a reader over the span's bytes of ra, including the
// synthesized trailing newline for an unterminated last line.
func (s Span) Reader(ra io.ReaderAt) io.Reader {
	section := io.NewSectionReader(ra, s.Offset, s.Length)
	if !s.Unterminated {
		return section
	}
	return io.MultiReader(section, strings.NewReader("\n"))
}
