package ocr

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, "tesseract", NewTesseract("", 0).Binary)
	assert.Equal(t, "/opt/bin/tesseract", NewTesseract("/opt/bin/tesseract", 6).Binary)
	assert.Equal(t, "pdftoppm", NewPDFToPPM("").Binary)
}

func TestAvailable(t *testing.T) {
	assert.False(t, Available("textbook-rag-no-such-binary"))
}

func TestMissingBinaryFails(t *testing.T) {
	engine := NewTesseract("textbook-rag-no-such-binary", 0)
	_, err := engine.Recognize(context.Background(), []byte("not an image"), "")
	assert.Error(t, err)

	renderer := NewPDFToPPM("textbook-rag-no-such-binary")
	_, err = renderer.RenderPage(context.Background(), []byte("%PDF-1.4"), 1, 0)
	assert.Error(t, err)
}

// fakeBinary writes an executable shell script into a temp dir.
func fakeBinary(t *testing.T, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestTesseractArguments(t *testing.T) {
	// echoes its arguments and the image it was given
	bin := fakeBinary(t, "tesseract", `echo "$@"; cat "$1"`)

	tests := []struct {
		name      string
		psm       int
		languages string
		want      string
	}{
		{"default languages", 0, "", " stdout -l guj+eng\n"},
		{"ingestion", 6, "guj", " stdout -l guj --psm 6\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewTesseract(bin, tt.psm).Recognize(context.Background(), []byte("PIXELS"), tt.languages)
			require.NoError(t, err)

			args, image, ok := strings.Cut(out, "\n")
			require.True(t, ok)
			assert.True(t, strings.HasSuffix(args+"\n", tt.want), args)
			assert.True(t, strings.HasSuffix(strings.Fields(args)[0], "page.img"), args)
			assert.Equal(t, "PIXELS", image)
		})
	}
}

func TestTesseractReportsStderr(t *testing.T) {
	bin := fakeBinary(t, "tesseract", `echo "Failed loading language 'guj'" >&2; exit 1`)

	_, err := NewTesseract(bin, 0).Recognize(context.Background(), []byte("x"), "guj")
	assert.ErrorContains(t, err, "Failed loading language 'guj'")
}

func TestPDFToPPMRendersSinglePage(t *testing.T) {
	// writes its arguments into <prefix>.png, the file -singlefile produces
	bin := fakeBinary(t, "pdftoppm", `for last; do :; done
echo "$@" > "$last.png"`)

	img, err := NewPDFToPPM(bin).RenderPage(context.Background(), []byte("%PDF-1.4"), 2, 400)
	require.NoError(t, err)

	args := strings.Fields(string(img))
	require.Len(t, args, 10)
	assert.Equal(t, []string{"-png", "-r", "400", "-f", "2", "-l", "2", "-singlefile"}, args[:8])
	assert.Equal(t, "doc.pdf", filepath.Base(args[8]))
	assert.Equal(t, "page", filepath.Base(args[9]))

	img, err = NewPDFToPPM(bin).RenderPage(context.Background(), []byte("%PDF-1.4"), 1, 0)
	require.NoError(t, err)
	assert.Contains(t, string(img), "-r 144 -f 1 -l 1")
}

func TestPDFToPPMMissingOutput(t *testing.T) {
	bin := fakeBinary(t, "pdftoppm", "exit 0")

	_, err := NewPDFToPPM(bin).RenderPage(context.Background(), []byte("%PDF-1.4"), 3, 144)
	assert.ErrorContains(t, err, "failed to read rendered page 3")
}
