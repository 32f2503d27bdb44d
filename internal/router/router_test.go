package router

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"textbook-rag/internal/database"
	"textbook-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoute(t *testing.T) {
	r := New("/data", database.NewSQLiteStore(), quietLogger())

	tests := []struct {
		subject string
		lang    models.Language
		dir     string
		coll    string
	}{
		{"Gujarati EVS", models.Gujarati, "grade3_gujarati_evs_db", models.GujaratiCollection},
		{"gujarati maths", models.Gujarati, "grade3_gujarati_maths_db", models.GujaratiCollection},
		{"Gujarati", models.Gujarati, "grade3_gujarati_gujarati_db", models.GujaratiCollection},
		{"Maths", models.English, "grade3_maths_db", models.EnglishCollection},
		{"Environmental Studies", models.English, "grade3_evs_db", models.EnglishCollection},
		{"English", models.English, "grade3_english_db", models.EnglishCollection},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			lang, loc := r.Route("3", tt.subject)
			assert.Equal(t, tt.lang, lang)
			assert.Equal(t, filepath.Join("/data", tt.dir), loc.Dir)
			assert.Equal(t, tt.coll, loc.Collection)
		})
	}
}

func TestLoadMissingCollection(t *testing.T) {
	r := New(t.TempDir(), database.NewSQLiteStore(), quietLogger())

	c, lang, err := r.Load(context.Background(), "2", "Gujarati EVS")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, models.Gujarati, lang)

	c, lang, err = r.Load(context.Background(), "2", "Maths")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, models.English, lang)
}

func TestLoadExistingCollection(t *testing.T) {
	ctx := context.Background()
	store := database.NewSQLiteStore()
	r := New(t.TempDir(), store, quietLogger())

	_, loc := r.Route("5", "Gujarati Maths")
	created, err := store.Create(ctx, loc, models.SpaceGujarati)
	require.NoError(t, err)
	require.NoError(t, created.Close())

	c, lang, err := r.Load(ctx, "5", "Gujarati Maths")
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()
	assert.Equal(t, models.Gujarati, lang)
	assert.Equal(t, models.SpaceGujarati, c.Space())
}

func TestLoadWrongSpaceIsAnError(t *testing.T) {
	ctx := context.Background()
	store := database.NewSQLiteStore()
	r := New(t.TempDir(), store, quietLogger())

	_, loc := r.Route("1", "EVS")
	created, err := store.Create(ctx, loc, models.SpaceGujarati)
	require.NoError(t, err)
	require.NoError(t, created.Close())

	_, lang, err := r.Load(ctx, "1", "EVS")
	assert.ErrorIs(t, err, database.ErrSpaceMismatch)
	assert.Equal(t, models.English, lang)
}
