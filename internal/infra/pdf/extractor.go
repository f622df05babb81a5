package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Extractor turns PDF documents into plain text with poppler's pdftotext.
type Extractor struct {
	binary string
}

// NewExtractor uses binary, or "pdftotext" from PATH when empty.
func NewExtractor(binary string) *Extractor {
	if binary == "" {
		binary = "pdftotext"
	}
	return &Extractor{binary: binary}
}

// Available reports whether the pdftotext binary can be found.
func (e *Extractor) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

func (e *Extractor) ExtractText(ctx context.Context, document []byte) (string, error) {
	if !bytes.HasPrefix(document, []byte("%PDF")) {
		return "", fmt.Errorf("document is not a PDF")
	}
	tmp, err := os.CreateTemp("", "quizroom-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, "-enc", "UTF-8", "-layout", tmp.Name(), "-")
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	text := strings.TrimSpace(string(output))
	if text == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return text, nil
}
