package progress

import (
	"bufio"
	"io"
	"strings"
)

// DefaultMaxLineLength bounds a single stderr line. Longer runs without a
// delimiter are cut into tokens of this size.
const DefaultMaxLineLength = 16 * 1024

// ScanLines returns a bufio.SplitFunc that treats both \r and \n as line
// delimiters, since progress-reporting tools redraw a line with a bare
// carriage return. A run of delimiters yields a single break. Data that
// reaches maxLen without a delimiter is emitted as a token of its own.
func ScanLines(maxLen int) bufio.SplitFunc {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		for i := 0; i < len(data) && i < maxLen; i++ {
			if data[i] == '\r' || data[i] == '\n' {
				advance = i + 1
				for advance < len(data) && (data[advance] == '\r' || data[advance] == '\n') {
					advance++
				}
				return advance, data[:i], nil
			}
		}

		if len(data) >= maxLen {
			return maxLen, data[:maxLen], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// EachLine reads r until EOF and calls fn for every non-blank line with
// surrounding whitespace trimmed. If scanning fails the remainder of r is
// discarded so the writing process never blocks on a full pipe.
func EachLine(r io.Reader, maxLen int, fn func(line string)) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 2*maxLen)
	scanner.Split(ScanLines(maxLen))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn(line)
	}

	err := scanner.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}
