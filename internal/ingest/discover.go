package ingest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"unicode"

	"textbook-rag/internal/models"
)

// Discover walks root for PDF textbooks. The grade comes from the deepest
// path element containing "grade" (grade3/, GUJARATI_evs_grade3.pdf), the
// subject from the file name.
func Discover(root string, lang models.Language) ([]Textbook, error) {
	var books []Textbook

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		books = append(books, Textbook{
			Path:     path,
			Subject:  SubjectFromFilename(filepath.Base(path)),
			Grade:    GradeFromPath(path),
			Language: lang,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return books, nil
}

// GradeFromPath returns the digits of the last path element mentioning a
// grade, or "0" when there is none.
func GradeFromPath(path string) string {
	grade := ""
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if !strings.Contains(strings.ToLower(part), "grade") {
			continue
		}
		var digits strings.Builder
		for _, r := range part {
			if unicode.IsDigit(r) {
				digits.WriteRune(r)
			}
		}
		if digits.Len() > 0 {
			grade = strings.TrimLeft(digits.String(), "0")
			if grade == "" {
				grade = "0"
			}
		}
	}
	if grade == "" {
		return "0"
	}
	return grade
}

// SubjectFromFilename guesses the subject from a textbook file name.
func SubjectFromFilename(name string) string {
	stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	switch {
	case strings.Contains(stem, "math"):
		return "Maths"
	case strings.Contains(stem, "evs"), strings.Contains(stem, "environment"):
		return "EVS"
	case strings.Contains(stem, "gujarati"):
		return "Gujarati"
	case strings.Contains(stem, "english"):
		return "English"
	}
	return "Unknown"
}
