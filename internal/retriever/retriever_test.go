package retriever

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"textbook-rag/internal/embedding"
	"textbook-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	space   models.Space
	queries []string
}

func (f *fakeEmbedder) Space() models.Space { return f.space }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([]models.Embedding, error) {
	out := make([]models.Embedding, len(texts))
	for i := range texts {
		out[i] = models.Embedding{Space: f.space, Vector: []float32{1}}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) (models.Embedding, error) {
	f.queries = append(f.queries, text)
	return models.Embedding{Space: f.space, Vector: []float32{1}}, nil
}

// stubCollection returns canned hits, truncated to n
type stubCollection struct {
	space  models.Space
	hits   []models.Hit
	err    error
	asked  int
	gotVec models.Embedding
}

func (s *stubCollection) Name() string        { return "stub" }
func (s *stubCollection) Space() models.Space { return s.space }
func (s *stubCollection) Add(ctx context.Context, records []models.Record) error {
	return nil
}
func (s *stubCollection) HasSource(ctx context.Context, source string) (bool, error) {
	return false, nil
}
func (s *stubCollection) Count(ctx context.Context) (int, error) { return len(s.hits), nil }
func (s *stubCollection) Close() error                           { return nil }

func (s *stubCollection) Query(ctx context.Context, q models.Embedding, n int) ([]models.Hit, error) {
	s.asked = n
	s.gotVec = q
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[:min(n, len(s.hits))], nil
}

func newRetriever() (*Retriever, *fakeEmbedder, *fakeEmbedder) {
	en := &fakeEmbedder{space: models.SpaceEnglish}
	gu := &fakeEmbedder{space: models.SpaceGujarati}
	r := New(embedding.Set{English: en, Gujarati: gu}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r, en, gu
}

func TestEnglishReturnsTopKUnfiltered(t *testing.T) {
	r, en, gu := newRetriever()
	c := &stubCollection{space: models.SpaceEnglish, hits: []models.Hit{
		{Text: "first", Distance: 9},
		{Text: "@@@", Distance: 10},
		{Text: "third", Distance: 11},
		{Text: "fourth", Distance: 12},
	}}

	hits, err := r.Retrieve(context.Background(), c, models.English, "what do plants need?")
	require.NoError(t, err)
	assert.Equal(t, 3, c.asked)
	assert.Equal(t, "first\n@@@\nthird", Join(hits, "\n"))
	assert.Equal(t, []string{"what do plants need?"}, en.queries)
	assert.Empty(t, gu.queries)
	assert.Equal(t, models.SpaceEnglish, c.gotVec.Space)
}

func TestGujaratiFiltersInvalidAndDistant(t *testing.T) {
	r, en, gu := newRetriever()
	c := &stubCollection{space: models.SpaceGujarati, hits: []models.Hit{
		{Text: "છોડને  પાણી\nજોઈએ", Distance: 0.4},
		{Text: "||| ~~~ ###", Distance: 0.2},
		{Text: "સૂર્ય પ્રકાશ આપે છે", Distance: 1.2},
		{Text: "ચંદ્ર રાત્રે દેખાય છે", Distance: 1.7},
		{Text: "random english words only", Distance: 0.1},
	}}

	hits, err := r.Retrieve(context.Background(), c, models.Gujarati, "છોડને શું જોઈએ?")
	require.NoError(t, err)
	assert.Equal(t, 5, c.asked)
	require.Len(t, hits, 2)
	assert.Equal(t, "છોડને પાણી જોઈએ\n\nસૂર્ય પ્રકાશ આપે છે", Join(hits, "\n\n"))
	assert.Equal(t, []string{"છોડને શું જોઈએ?"}, gu.queries)
	assert.Empty(t, en.queries)
}

func TestGujaratiDistanceBoundary(t *testing.T) {
	tests := []struct {
		distance float64
		kept     bool
	}{
		{1.5, false},
		{1.4999, true},
		{1.5001, false},
		{0, true},
	}

	for _, tt := range tests {
		r, _, _ := newRetriever()
		c := &stubCollection{space: models.SpaceGujarati, hits: []models.Hit{{Text: "ગુજરાતી પાઠ", Distance: tt.distance}}}

		hits, err := r.Retrieve(context.Background(), c, models.Gujarati, "q")
		require.NoError(t, err)
		assert.Equal(t, tt.kept, len(hits) == 1, "distance %v", tt.distance)
	}
}

func TestGujaratiAllFilteredMeansNoContext(t *testing.T) {
	r, _, _ := newRetriever()
	c := &stubCollection{space: models.SpaceGujarati, hits: []models.Hit{
		{Text: "abc", Distance: 0.1},
		{Text: "ગુજરાતી", Distance: 3},
	}}

	hits, err := r.Retrieve(context.Background(), c, models.Gujarati, "q")
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, Join(hits, "\n\n"))
}

func TestUploadGujaratiIgnoresDistance(t *testing.T) {
	r, _, _ := newRetriever()
	c := &stubCollection{space: models.SpaceGujarati, hits: []models.Hit{
		{Text: "ગુજરાતી પાઠ", Distance: 40},
		{Text: "plain english", Distance: 0.1},
		{Text: "બીજો પાઠ", Distance: 50},
		{Text: "ત્રીજો", Distance: 60},
	}}

	hits, err := r.RetrieveUpload(context.Background(), c, models.Gujarati, "q")
	require.NoError(t, err)
	assert.Equal(t, 3, c.asked)
	assert.Equal(t, "ગુજરાતી પાઠ\n\nબીજો પાઠ", Join(hits, "\n\n"))
}

func TestUploadEnglishUnfiltered(t *testing.T) {
	r, _, _ := newRetriever()
	c := &stubCollection{space: models.SpaceEnglish, hits: []models.Hit{{Text: "a"}, {Text: "b"}}}

	hits, err := r.RetrieveUpload(context.Background(), c, models.English, "q")
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestQueryErrorsPropagate(t *testing.T) {
	r, _, _ := newRetriever()
	boom := errors.New("index unavailable")
	c := &stubCollection{space: models.SpaceEnglish, err: boom}

	_, err := r.Retrieve(context.Background(), c, models.English, "q")
	assert.ErrorIs(t, err, boom)

	r.Embedders = embedding.Set{English: r.Embedders.English}
	_, err = r.Retrieve(context.Background(), c, models.Gujarati, "q")
	assert.Error(t, err)
}
