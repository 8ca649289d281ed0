// Package attach extracts readable text from email attachments.
package attach

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxTextBytes bounds the text taken from one attachment so a large document
// cannot crowd the email body out of a prompt.
const maxTextBytes = 20000

// Attachment is the subset of the provider attachment shape we read.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	// Content is base64 and only present when the provider inlines it.
	Content string `json:"content"`
}

// PDFText returns the plain text of a PDF document. The reader panics on
// some malformed files; those come back as errors.
func PDFText(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(plain, maxTextBytes)); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func isPDF(a Attachment) bool {
	return strings.EqualFold(a.ContentType, "application/pdf") ||
		strings.EqualFold(path.Ext(a.Filename), ".pdf")
}

// TextFromJSON reads the attachments JSON stored with a raw email and returns
// the text of every inline PDF, each headed by its filename. Attachments that
// are not PDFs, carry no inline content or fail to decode are skipped.
func TextFromJSON(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	var atts []Attachment
	if err := json.Unmarshal([]byte(raw), &atts); err != nil {
		slog.Debug("attachments are not a JSON array", "error", err)
		return ""
	}

	var sb strings.Builder
	for _, a := range atts {
		if !isPDF(a) || a.Content == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			slog.Warn("skipping attachment with invalid base64", "filename", a.Filename, "error", err)
			continue
		}
		text, err := PDFText(data)
		if err != nil {
			slog.Warn("skipping unreadable pdf attachment", "filename", a.Filename, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n\n--- Attachment: %s ---\n%s", a.Filename, text)
	}
	return sb.String()
}
