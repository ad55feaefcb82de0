package extract

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

func TestExtract_PlainText(t *testing.T) {
	res, err := New(0).Extract(context.Background(), "notes.TXT", strings.NewReader("  line one\r\nline two\n"))

	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", res.Text)
	assert.Equal(t, MethodText, res.Method)
}

func TestExtract_UTF16WithBOM(t *testing.T) {
	data := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}

	res, err := New(0).Extract(context.Background(), "a.txt", bytes.NewReader(data))

	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)
}

func TestExtract_NormalizesToNFC(t *testing.T) {
	res, err := New(0).Extract(context.Background(), "a.txt", strings.NewReader("Vie\u0323\u0302t"))

	require.NoError(t, err)
	assert.Equal(t, "Vi\u1ec7t", res.Text)
}

func TestExtract_MaxBytes(t *testing.T) {
	res, err := New(5).Extract(context.Background(), "a.log", strings.NewReader("hello world"))

	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	for _, name := range []string{"plan.pdf", "scan.png", "noext"} {
		_, err := New(0).Extract(context.Background(), name, strings.NewReader("x"))
		assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat), name)
	}
}

func TestExtract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(0).Extract(ctx, "a.txt", strings.NewReader("x"))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_Markdown(t *testing.T) {
	src := "# Quy chuẩn\n\nSome **bold** text with [link](http://example.com).\n\n" +
		"- item one\n- item two\n\n```go\ncode here\n```\n\n<div>raw html</div>\n"

	res, err := New(0).Extract(context.Background(), "README.md", strings.NewReader(src))

	require.NoError(t, err)
	assert.Equal(t, "Quy chuẩn\n\nSome bold text with link.\n\nitem one\nitem two\n\ncode here", res.Text)
}

func TestExtract_MarkdownSoftBreaks(t *testing.T) {
	res, err := New(0).Extract(context.Background(), "a.markdown", strings.NewReader("first line\nsecond line\n"))

	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", res.Text)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.md"))
	assert.True(t, Supported("B.TXT"))
	assert.False(t, Supported("c.docx"))
}
