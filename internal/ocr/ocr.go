// Package ocr wraps the external OCR engine and PDF rasterizer. Both are
// driven through their command line tools (tesseract and poppler's pdftoppm).
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultLanguages is the dual-language Tesseract model used for uploads
// and scanned pages.
const DefaultLanguages = "guj+eng"

// Engine turns an image into text.
type Engine interface {
	Recognize(ctx context.Context, image []byte, languages string) (string, error)
}

// Renderer rasterizes a single PDF page (1-based) to PNG bytes.
type Renderer interface {
	RenderPage(ctx context.Context, pdf []byte, page int, dpi int) ([]byte, error)
}

// Available reports whether binary can be found on PATH.
func Available(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// Tesseract runs the tesseract CLI
type Tesseract struct {
	Binary string
	// PSM is the page segmentation mode, 0 leaves tesseract's default.
	PSM int
}

// NewTesseract creates a Tesseract engine using binary (default "tesseract").
func NewTesseract(binary string, psm int) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	return &Tesseract{Binary: binary, PSM: psm}
}

// Recognize writes the image to a temporary file and returns tesseract's stdout.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, languages string) (string, error) {
	if languages == "" {
		languages = DefaultLanguages
	}

	tmpDir, err := os.MkdirTemp("", "textbook-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	imgPath := filepath.Join(tmpDir, "page.img")
	if err := os.WriteFile(imgPath, image, 0o600); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	args := []string{imgPath, "stdout", "-l", languages}
	if t.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.PSM))
	}

	cmd := exec.CommandContext(ctx, t.Binary, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return out.String(), nil
}

// PDFToPPM rasterizes pages with poppler's pdftoppm
type PDFToPPM struct {
	Binary string
}

// NewPDFToPPM creates a renderer using binary (default "pdftoppm").
func NewPDFToPPM(binary string) *PDFToPPM {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &PDFToPPM{Binary: binary}
}

// RenderPage renders page of pdf at dpi into a PNG.
func (p *PDFToPPM) RenderPage(ctx context.Context, pdf []byte, page int, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = 144
	}

	tmpDir, err := os.MkdirTemp("", "textbook-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	pageArg := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.Binary,
		"-png", "-r", strconv.Itoa(dpi),
		"-f", pageArg, "-l", pageArg,
		"-singlefile", pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}

	img, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page %d: %w", page, err)
	}
	return img, nil
}
