package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"pharmex/m/domain"
)

var catalog = []domain.Medicine{
	{ID: 1, BrandName: "Napa", GenericName: "Paracetamol"},
	{ID: 2, BrandName: "Seclo", GenericName: "Omeprazole"},
	{ID: 3, BrandName: "Maxpro", GenericName: "Esomeprazole"},
}

func TestSearchRanksByMatchQuality(t *testing.T) {
	fb := &fakeBackend{searchFn: func(_ context.Context, _ string) ([]domain.Medicine, error) {
		return catalog, nil
	}}
	s := NewSearcher(fb, zap.NewNop())

	results, err := s.Search(context.Background(), "seclo")
	assert.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "Seclo", results[0].BrandName)
}

func TestSearchCachesRepeatedQueries(t *testing.T) {
	fb := &fakeBackend{searchFn: func(_ context.Context, _ string) ([]domain.Medicine, error) {
		return catalog, nil
	}}
	s := NewSearcher(fb, zap.NewNop())

	_, err := s.Search(context.Background(), "napa")
	assert.NoError(t, err)
	_, err = s.Search(context.Background(), "napa")
	assert.NoError(t, err)

	assert.Equal(t, 1, fb.searchCalls, "second identical query served from cache")
}

func TestSearchSupersededByNewerQuery(t *testing.T) {
	started := make(chan struct{})
	fb := &fakeBackend{searchFn: func(ctx context.Context, query string) ([]domain.Medicine, error) {
		if query == "na" {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return catalog, nil
	}}
	s := NewSearcher(fb, zap.NewNop())

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "na")
		firstErr <- err
	}()

	<-started
	// The next keystroke cancels the in-flight query.
	results, err := s.Search(context.Background(), "seclo")
	assert.NoError(t, err)
	assert.NotEmpty(t, results)

	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
}

func TestSearchEmptyQueryKeepsBackendOrder(t *testing.T) {
	fb := &fakeBackend{searchFn: func(_ context.Context, _ string) ([]domain.Medicine, error) {
		return catalog, nil
	}}
	s := NewSearcher(fb, zap.NewNop())

	results, err := s.Search(context.Background(), "  ")
	assert.NoError(t, err)
	assert.Equal(t, catalog, results)
}
