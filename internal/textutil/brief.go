package textutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxBriefSize bounds uploaded brief documents.
const MaxBriefSize = 5 << 20 // 5MB

// ErrUnsupportedBrief is returned for brief documents that are neither PDF,
// HTML nor UTF-8 text.
var ErrUnsupportedBrief = errors.New("unsupported brief format")

// ExtractBrief returns the plain text of a brief document used to describe
// what the user needs. PDF, HTML and UTF-8 text are accepted.
func ExtractBrief(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if len(data) > MaxBriefSize {
		return "", fmt.Errorf("brief exceeds %d bytes", MaxBriefSize)
	}

	contentType := http.DetectContentType(data)
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")) || contentType == "application/pdf":
		return pdfText(data)
	case strings.HasPrefix(contentType, "text/html"):
		return StripHTML(string(data)), nil
	case strings.HasPrefix(contentType, "text/plain") && utf8.Valid(data):
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedBrief, contentType)
	}
}

func pdfText(data []byte) (text string, err error) {
	// The pdf reader panics on some truncated cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.Join(strings.Fields(string(b)), " "), nil
}
