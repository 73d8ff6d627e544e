package logging

import (
	"io"
	"regexp"
)

// Redacted replaces any credential found in log output.
const Redacted = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // compiled once
	// ResyAPI api_key="..." authorization header and api_key=... pairs
	regexp.MustCompile(`(?i)(api[_-]?key)\\?["']?\s*[:=]\s*\\?["']?[a-zA-Z0-9_-]{16,}\\?["']?`),
	// JWTs, which is what Resy auth tokens are
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
	regexp.MustCompile(`(?i)(auth[_-]?token)\\?["']?\s*[:=]\s*\\?["']?[a-zA-Z0-9._+/=-]{16,}\\?["']?`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`(?i)(secret|password|passwd)\s*[:=]\s*\\?["']?[^\s"'\\]{8,}\\?["']?`),
}

// Redact replaces credentials in s with Redacted.
func Redact(s string) string {
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, Redacted)
	}
	return s
}

// ContainsSensitive reports whether s holds anything Redact would replace.
func ContainsSensitive(s string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// FilteringWriter redacts credentials from everything written through it.
type FilteringWriter struct {
	w io.Writer
}

func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write reports len(p) on success so callers never see a short write after
// redaction changed the length.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	if _, err := fw.w.Write([]byte(Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

type filteringWriteCloser struct {
	*FilteringWriter
	io.Closer
}
