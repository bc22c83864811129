package exchange

import (
	"context"
	"errors"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"pharmex/m/domain"
)

// ErrSuperseded means a newer query started before this one finished; its
// result must not reach the view.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Searcher runs the creation form's search-as-you-type. A new keystroke
// cancels any in-flight query, and only the latest query may deliver a
// result. Past results are memoized in a small LRU since the medicine
// catalog is effectively immutable within a session.
type Searcher struct {
	backend Backend
	cache   *lru.Cache
	log     *zap.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewSearcher(b Backend, logger *zap.Logger) *Searcher {
	cache, _ := lru.New(64)
	return &Searcher{backend: b, cache: cache, log: logger}
}

// Search fetches medicines matching the query, ranked by fuzzy match
// quality. Returns ErrSuperseded when a newer query took over.
func (s *Searcher) Search(ctx context.Context, query string) ([]domain.Medicine, error) {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	defer cancel()

	if cached, ok := s.cache.Get(query); ok {
		if s.stale(gen) {
			return nil, ErrSuperseded
		}
		return rank(query, cached.([]domain.Medicine)), nil
	}

	results, err := s.backend.SearchMedicines(ctx, query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.log.Debug("search superseded", zap.String("query", query))
			return nil, ErrSuperseded
		}
		return nil, err
	}
	if s.stale(gen) {
		s.log.Debug("search result stale, dropping", zap.String("query", query))
		return nil, ErrSuperseded
	}
	s.cache.Add(query, results)
	return rank(query, results), nil
}

func (s *Searcher) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen
}

type medicineSource []domain.Medicine

func (m medicineSource) String(i int) string {
	return m[i].BrandName + " " + m[i].GenericName
}

func (m medicineSource) Len() int { return len(m) }

// rank orders backend results by match quality against the query, keeping
// non-matching entries after the matches in their original order.
func rank(query string, meds []domain.Medicine) []domain.Medicine {
	if query == "" || len(meds) == 0 {
		return meds
	}
	matches := fuzzy.FindFrom(query, medicineSource(meds))
	if len(matches) == 0 {
		return meds
	}
	ranked := make([]domain.Medicine, 0, len(meds))
	matched := make(map[int]bool, len(matches))
	for _, m := range matches {
		ranked = append(ranked, meds[m.Index])
		matched[m.Index] = true
	}
	for i, med := range meds {
		if !matched[i] {
			ranked = append(ranked, med)
		}
	}
	return ranked
}
