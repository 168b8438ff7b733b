package pac

import "strings"

// LineFramer reassembles pac reply lines from arbitrarily chunked stdout.
//
// A chunk is appended to the held-back partial line and split on newlines.
// Empty segments are dropped. If the last segment does not end in "}" it is
// presumed incomplete and held back for the next chunk; every other segment
// is returned in order. At most one partial line exists at a time.
//
// LineFramer is not safe for concurrent use; the stdout reader owns it.
type LineFramer struct {
	partial string
}

// Feed consumes one stdout chunk and returns the complete lines it closes.
func (f *LineFramer) Feed(chunk []byte) []string {
	text := f.partial + string(chunk)
	f.partial = ""

	var lines []string
	for seg := range strings.SplitSeq(text, "\n") {
		seg = strings.TrimSuffix(seg, "\r")
		if seg == "" {
			continue
		}
		lines = append(lines, seg)
	}

	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "}") {
		f.partial = lines[n-1]
		lines = lines[:n-1]
	}
	return lines
}

// Partial returns the currently held-back fragment.
func (f *LineFramer) Partial() string {
	return f.partial
}

// Reset drops any held-back fragment.
func (f *LineFramer) Reset() {
	f.partial = ""
}
