package logtail

import (
	"io"
	"os"
	"regexp"
	"strings"
)

// DefaultBytes bounds how much of a log is returned to status callers
const DefaultBytes int64 = 16 * 1024

// stageLine matches the trainer's progress lines, e.g. "STEP 3/6: Loading base model..."
var stageLine = regexp.MustCompile(`STEP \d+/\d+:[^\r\n]*`)

// Tail returns the last n bytes of the file at path, ending at end-of-file.
// The file is opened read-only without locking, so a concurrent writer is
// never blocked. A missing file or any I/O error yields "".
func Tail(path string, n int64) string {
	if n <= 0 {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	offset := info.Size() - n
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	// the writer may have appended between Stat and ReadAll
	if int64(len(data)) > n {
		data = data[int64(len(data))-n:]
	}
	return string(data)
}

// Stage returns the last trainer progress line found in tail, trimmed
func Stage(tail string) string {
	matches := stageLine.FindAllString(tail, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1])
}
