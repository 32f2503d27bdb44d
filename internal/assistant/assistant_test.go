package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"textbook-rag/internal/database"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/llm"
	"textbook-rag/internal/models"
	"textbook-rag/internal/processor"
	"textbook-rag/internal/retriever"
	"textbook-rag/internal/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmbedder maps every text to a vector of its rune count, so
// similarity search ranks by length difference.
type fakeEmbedder struct {
	space models.Space
}

func (f *fakeEmbedder) Space() models.Space { return f.space }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([]models.Embedding, error) {
	out := make([]models.Embedding, len(texts))
	for i, t := range texts {
		out[i] = models.Embedding{Space: f.space, Vector: []float32{float32(len([]rune(t)))}}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) (models.Embedding, error) {
	return models.Embedding{Space: f.space, Vector: []float32{0}}, nil
}

type stubCollection struct {
	space  models.Space
	hits   []models.Hit
	closed bool
}

func (s *stubCollection) Name() string        { return "stub" }
func (s *stubCollection) Space() models.Space { return s.space }
func (s *stubCollection) Add(ctx context.Context, records []models.Record) error {
	return nil
}
func (s *stubCollection) Query(ctx context.Context, q models.Embedding, n int) ([]models.Hit, error) {
	return s.hits[:min(n, len(s.hits))], nil
}
func (s *stubCollection) HasSource(ctx context.Context, source string) (bool, error) {
	return false, nil
}
func (s *stubCollection) Count(ctx context.Context) (int, error) { return len(s.hits), nil }
func (s *stubCollection) Close() error {
	s.closed = true
	return nil
}

type stubLoader struct {
	collection database.Collection
	lang       models.Language
	err        error
}

func (l *stubLoader) Load(ctx context.Context, grade, subject string) (database.Collection, models.Language, error) {
	return l.collection, l.lang, l.err
}

type capturingAnswerer struct {
	calls    int
	lang     models.Language
	passages string
	err      error
}

func (c *capturingAnswerer) Answer(ctx context.Context, lang models.Language, passages, question string) (string, error) {
	c.calls++
	c.lang = lang
	c.passages = passages
	if c.err != nil {
		return "", c.err
	}
	return "answer to " + question, nil
}

type countingProvider struct{ calls int }

func (p *countingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	p.calls++
	return "should not be called", nil
}

func newAssistant(loader Loader, answerer Answerer) *Assistant {
	embedders := embedding.Set{
		English:  &fakeEmbedder{space: models.SpaceEnglish},
		Gujarati: &fakeEmbedder{space: models.SpaceGujarati},
	}
	logger := quietLogger()
	return New(loader, retriever.New(embedders, logger), processor.NewExtractor(nil, nil, logger), answerer, logger)
}

func TestAskWithoutAnyContextSkipsCompletion(t *testing.T) {
	for _, subject := range []string{"Gujarati EVS", "Maths"} {
		t.Run(subject, func(t *testing.T) {
			provider := &countingProvider{}
			loader := router.New(t.TempDir(), database.NewSQLiteStore(), quietLogger())
			a := newAssistant(loader, llm.NewComposer(provider, quietLogger()))

			resp, err := a.Ask(context.Background(), models.Request{Message: "why?", Grade: "3", Subject: subject})
			require.NoError(t, err)

			lang := models.DetectLanguage(subject)
			assert.Equal(t, llm.NotFoundMessage(lang), resp.Answer)
			assert.Equal(t, lang, resp.Language)
			assert.Zero(t, provider.calls)
		})
	}
}

func TestAskGujaratiPassesOnlyFilteredChunks(t *testing.T) {
	collection := &stubCollection{space: models.SpaceGujarati, hits: []models.Hit{
		{Text: "છોડને પાણી જોઈએ", Distance: 0.3},
		{Text: "#### ~~~~", Distance: 0.4},
		{Text: "સૂર્ય પ્રકાશ આપે છે", Distance: 1.4999},
		{Text: "ચંદ્ર", Distance: 1.5},
		{Text: "english only text", Distance: 0.2},
	}}
	answerer := &capturingAnswerer{}
	a := newAssistant(&stubLoader{collection: collection, lang: models.Gujarati}, answerer)

	resp, err := a.Ask(context.Background(), models.Request{Message: "પ્રશ્ન", Grade: "2", Subject: "Gujarati EVS"})
	require.NoError(t, err)
	assert.Equal(t, "answer to પ્રશ્ન", resp.Answer)
	assert.Equal(t, models.Gujarati, answerer.lang)
	assert.Equal(t, "છોડને પાણી જોઈએ\n\nસૂર્ય પ્રકાશ આપે છે", answerer.passages)
	assert.Len(t, resp.Sources, 2)
	assert.True(t, collection.closed)
}

func TestAskEnglishPassesAllChunksInOrder(t *testing.T) {
	collection := &stubCollection{space: models.SpaceEnglish, hits: []models.Hit{
		{Text: "Plants need water.", Distance: 0.1},
		{Text: "Plants need sunlight.", Distance: 0.7},
		{Text: "%%% noisy %%%", Distance: 4},
	}}
	answerer := &capturingAnswerer{}
	a := newAssistant(&stubLoader{collection: collection, lang: models.English}, answerer)

	_, err := a.Ask(context.Background(), models.Request{Message: "What do plants need?", Grade: "3", Subject: "EVS"})
	require.NoError(t, err)
	assert.Equal(t, "Plants need water.\nPlants need sunlight.\n%%% noisy %%%", answerer.passages)
	assert.True(t, collection.closed)
}

func TestAskUsesUploadedFile(t *testing.T) {
	answerer := &capturingAnswerer{}
	a := newAssistant(&stubLoader{lang: models.English}, answerer)

	file := &models.Document{Filename: "notes.txt", Content: []byte("The water cycle has evaporation, condensation and precipitation.")}
	_, err := a.Ask(context.Background(), models.Request{Message: "water cycle?", Grade: "4", Subject: "EVS", File: file})
	require.NoError(t, err)
	assert.Equal(t, 1, answerer.calls)
	assert.Equal(t, "The water cycle has evaporation, condensation and precipitation.", answerer.passages)
}

func TestAskAppendsUploadAfterTextbook(t *testing.T) {
	collection := &stubCollection{space: models.SpaceEnglish, hits: []models.Hit{{Text: "From the book."}}}
	answerer := &capturingAnswerer{}
	a := newAssistant(&stubLoader{collection: collection, lang: models.English}, answerer)
	a.ChunkSize, a.ChunkOverlap = 20, 0

	file := &models.Document{Filename: "notes.txt", Content: []byte(strings.Repeat("a", 20) + strings.Repeat("b", 20))}
	_, err := a.Ask(context.Background(), models.Request{Message: "q", Grade: "4", Subject: "EVS", File: file})
	require.NoError(t, err)
	assert.Equal(t, "From the book.\n\n"+strings.Repeat("a", 20)+"\n\n"+strings.Repeat("b", 20), answerer.passages)
}

func TestAskIgnoresUnusableUpload(t *testing.T) {
	provider := &countingProvider{}
	a := newAssistant(&stubLoader{lang: models.Gujarati}, llm.NewComposer(provider, quietLogger()))

	for _, file := range []*models.Document{
		{Filename: "tiny.txt", Content: []byte("  short  ")},
		{Filename: "deck.pptx", Content: []byte("whatever content is here")},
		{Filename: "notes.txt", Content: []byte("only english words, nothing gujarati")},
	} {
		resp, err := a.Ask(context.Background(), models.Request{Message: "q", Grade: "1", Subject: "Gujarati", File: file})
		require.NoError(t, err)
		assert.Equal(t, llm.NotFoundMessage(models.Gujarati), resp.Answer, file.Filename)
	}
	assert.Zero(t, provider.calls)
}

func TestAskPropagatesFailures(t *testing.T) {
	boom := errors.New("disk on fire")
	a := newAssistant(&stubLoader{err: boom}, &capturingAnswerer{})
	_, err := a.Ask(context.Background(), models.Request{Message: "q", Grade: "1", Subject: "EVS"})
	assert.ErrorIs(t, err, boom)

	collection := &stubCollection{space: models.SpaceEnglish, hits: []models.Hit{{Text: "x"}}}
	a = newAssistant(&stubLoader{collection: collection}, &capturingAnswerer{err: llm.ErrTimeout})
	_, err = a.Ask(context.Background(), models.Request{Message: "q", Grade: "1", Subject: "EVS"})
	assert.ErrorIs(t, err, llm.ErrTimeout)
}
