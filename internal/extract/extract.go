// Package extract turns uploaded files into plain text for indexing.
package extract

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// MethodText marks text read directly from the file (no OCR).
const MethodText = "text"

// DefaultMaxBytes caps how much of a single file is read.
const DefaultMaxBytes = 32 << 20

var (
	plainExts    = []string{".txt", ".text", ".csv", ".tsv", ".log"}
	markdownExts = []string{".md", ".markdown"}
)

// Result is the extracted text of one file.
type Result struct {
	Text   string
	Method string
}

// Extractor reads plain text and Markdown files. Text is decoded as UTF-8, or UTF-16
// when a byte order mark says so, and normalized to NFC.
type Extractor struct {
	maxBytes int64
}

// New creates an Extractor. maxBytes <= 0 uses DefaultMaxBytes.
func New(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{maxBytes: maxBytes}
}

// Supported reports whether name has an extension the extractor can read.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(plainExts, ext) || slices.Contains(markdownExts, ext)
}

// Extract reads r and returns its text. The format is chosen by the extension of name.
func (e *Extractor) Extract(ctx context.Context, name string, r io.Reader) (Result, error) {
	ext := strings.ToLower(filepath.Ext(name))
	markdown := slices.Contains(markdownExts, ext)
	if !markdown && !slices.Contains(plainExts, ext) {
		return Result{}, fmt.Errorf("%s: %w", name, domain.ErrUnsupportedFormat)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	raw, err := e.read(r)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", name, err)
	}

	text := raw
	if markdown {
		text = markdownText([]byte(raw))
	}
	return Result{Text: strings.TrimSpace(text), Method: MethodText}, nil
}

func (e *Extractor) read(r io.Reader) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(io.LimitReader(transform.NewReader(r, dec), e.maxBytes))
	if err != nil {
		return "", err
	}
	text := strings.ToValidUTF8(string(data), "�")
	return norm.NFC.String(strings.ReplaceAll(text, "\r\n", "\n")), nil
}
