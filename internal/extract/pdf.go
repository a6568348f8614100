// Package extract pulls plain text out of PDF documents.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"safetyqa/internal/domain"
)

// ErrNoText is returned when a PDF parses but contains no extractable text.
var ErrNoText = errors.New("no text extracted")

// PDF extracts the plain text of every page, in page order.
type PDF struct{}

var _ domain.TextExtractor = PDF{}

// Extract parses data as a PDF document.
func (PDF) Extract(data []byte) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf buffer: %w", err)
	}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return "", ErrNoText
	}
	return buf.String(), nil
}
