package models

import (
	"fmt"
	"strings"
)

// Space tags an embedding with the model family that produced it. Vectors
// from different spaces are never comparable.
type Space string

const (
	SpaceEnglish  Space = "english"
	SpaceGujarati Space = "gujarati"
)

// Embedding is a vector together with the space it lives in
type Embedding struct {
	Space  Space     `json:"space"`
	Vector []float32 `json:"vector"`
}

// Document is a raw uploaded file. It lives only as long as the request
// that carried it.
type Document struct {
	Filename string
	Content  []byte
}

// Page is the extracted text of a single PDF page (or the whole text of a
// non-paginated document, reported as page 1).
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	OCR    bool   `json:"ocr"`
}

// Metadata is attached to every stored chunk
type Metadata struct {
	Subject    string `json:"subject"`
	Grade      string `json:"grade"`
	Language   string `json:"language"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

// Record is one row of a collection
type Record struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding Embedding `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// RecordID builds the id used for idempotent ingestion: source file name,
// page number and chunk index within the page.
func RecordID(source string, page, chunkIndex int) string {
	return fmt.Sprintf("%s_p%d_c%d", source, page, chunkIndex)
}

// Hit is a single similarity search result. Smaller distances are closer.
type Hit struct {
	Text     string   `json:"text"`
	Distance float64  `json:"distance"`
	Metadata Metadata `json:"metadata"`
}

// Request is what the HTTP and CLI shells hand to the assistant
type Request struct {
	Message string
	Grade   string
	Subject string
	File    *Document
}

// Response represents the answer returned to the caller
type Response struct {
	Answer    string   `json:"answer"`
	Language  Language `json:"-"`
	Sources   []Hit    `json:"-"`
	Timestamp string   `json:"-"`
}

// TrimmedLen is the character count used for the short-text thresholds
// throughout the pipeline.
func TrimmedLen(text string) int {
	return len([]rune(strings.TrimSpace(text)))
}
