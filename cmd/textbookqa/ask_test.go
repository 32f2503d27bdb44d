package main

import (
	"os"
	"path/filepath"
	"testing"

	"textbook-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAnswer(t *testing.T) {
	resp := &models.Response{
		Answer: "Plants need water.",
		Sources: []models.Hit{
			{Distance: 0.25, Metadata: models.Metadata{Source: "evs_grade3.pdf", Page: 12}},
			{Distance: 0.5},
		},
	}

	assert.Equal(t, "Plants need water.", formatAnswer(resp, false))
	assert.Equal(t,
		"Plants need water.\n\nSources:\n  1. [evs_grade3.pdf, page 12, distance 0.250]\n  2. [N/A, page 0, distance 0.500]\n",
		formatAnswer(resp, true))
}

func TestChatCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	grade, subject, file := chatCommand("/grade 4", "3", "EVS", nil)
	assert.Equal(t, "4", grade)
	assert.Equal(t, "EVS", subject)
	assert.Nil(t, file)

	grade, subject, file = chatCommand("/subject Gujarati EVS", grade, subject, file)
	assert.Equal(t, "Gujarati EVS", subject)

	_, _, file = chatCommand("/file "+path, grade, subject, file)
	require.NotNil(t, file)
	assert.Equal(t, "notes.txt", file.Filename)
	assert.Equal(t, []byte("hello"), file.Content)

	_, _, kept := chatCommand("/file "+filepath.Join(t.TempDir(), "missing.txt"), grade, subject, file)
	assert.Same(t, file, kept)

	_, _, file = chatCommand("/file", grade, subject, file)
	assert.Nil(t, file)

	grade, subject, _ = chatCommand("/unknown", grade, subject, nil)
	assert.Equal(t, "4", grade)
	assert.Equal(t, "Gujarati EVS", subject)
}

func TestReadUpload(t *testing.T) {
	doc, err := readUpload("")
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = readUpload(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}
