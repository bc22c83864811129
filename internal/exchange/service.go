package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"pharmex/m/domain"
	"pharmex/m/internal/backend"
)

var (
	// ErrReasonRequired: reject must carry a non-empty reason before any
	// network call is issued.
	ErrReasonRequired = errors.New("a rejection reason is required")

	// ErrConfirmRequired: cancel needs explicit user confirmation first.
	ErrConfirmRequired = errors.New("cancellation requires explicit confirmation")

	// ErrTransitionInFlight guards against firing a second transition on the
	// same exchange while one is pending.
	ErrTransitionInFlight = errors.New("a transition for this exchange is already in flight")
)

// Backend is the slice of the API client the exchange service drives.
type Backend interface {
	CreateExchange(ctx context.Context, req backend.CreateExchangeRequest) (domain.Exchange, error)
	ListExchanges(ctx context.Context, f backend.ListFilter) ([]domain.Exchange, error)
	ListPartners(ctx context.Context) ([]domain.PartnerPharmacy, error)
	Action(ctx context.Context, id int64, action, reason string) (domain.Exchange, error)
	Process(ctx context.Context, id int64) (domain.Exchange, error)
	History(ctx context.Context, pharmacyID int64) ([]domain.Exchange, error)
	SearchMedicines(ctx context.Context, query string) ([]domain.Medicine, error)
}

// Row is an exchange decorated with the actions the acting pharmacy may be
// offered for it.
type Row struct {
	domain.Exchange
	AvailableActions []Action `json:"available_actions"`
}

// History is the per-partner view: every exchange with that partner plus the
// derived balance.
type History struct {
	PartnerID int64                  `json:"partner_id"`
	Exchanges []Row                  `json:"exchanges"`
	Balance   domain.PharmacyBalance `json:"balance"`
}

// Service orchestrates the exchange workflow: validate locally, call the
// backend, then refetch so the displayed state is always the backend's.
type Service struct {
	backend Backend
	log     *zap.Logger

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func NewService(b Backend, logger *zap.Logger) *Service {
	return &Service{backend: b, log: logger, inflight: map[int64]struct{}{}}
}

// Submit validates the draft and creates the exchange. An invalid draft is
// rejected before any network call.
func (s *Service) Submit(ctx context.Context, actingPharmacyID int64, d *Draft) (domain.Exchange, error) {
	if err := d.Validate(actingPharmacyID); err != nil {
		return domain.Exchange{}, err
	}
	ex, err := s.backend.CreateExchange(ctx, d.Request())
	if err != nil {
		// The draft is untouched; the caller keeps the form state.
		return domain.Exchange{}, err
	}
	s.log.Info("exchange created",
		zap.Int64("exchange_id", ex.ID),
		zap.Int64("dest_pharmacy", d.DestPharmacyID),
		zap.Int64("total_quantity", d.TotalQuantity()))
	return ex, nil
}

// List returns exchanges decorated with their available actions.
func (s *Service) List(ctx context.Context, f backend.ListFilter) ([]Row, error) {
	list, err := s.backend.ListExchanges(ctx, f)
	if err != nil {
		return nil, err
	}
	return decorate(list), nil
}

// Partners returns the read-only partner pharmacy directory.
func (s *Service) Partners(ctx context.Context) ([]domain.PartnerPharmacy, error) {
	return s.backend.ListPartners(ctx)
}

// Transition validates and issues one state transition, then refetches the
// full list. Nothing is mutated optimistically: on failure the caller keeps
// the last known-good rows; on success the returned rows are the backend's
// current truth.
func (s *Service) Transition(ctx context.Context, id int64, action Action, reason string, confirmed bool) ([]Row, error) {
	if action == ActionReject && strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if action == ActionCancel && !confirmed {
		return nil, ErrConfirmRequired
	}

	if !s.begin(id) {
		return nil, ErrTransitionInFlight
	}
	defer s.end(id)

	current, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(current.Status, current.Direction, action); err != nil {
		return nil, err
	}

	if action == ActionProcess {
		_, err = s.backend.Process(ctx, id)
	} else {
		_, err = s.backend.Action(ctx, id, string(action), strings.TrimSpace(reason))
	}
	if err != nil {
		s.log.Warn("transition failed",
			zap.Int64("exchange_id", id),
			zap.String("action", string(action)),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("transition applied",
		zap.Int64("exchange_id", id),
		zap.String("action", string(action)))
	return s.List(ctx, backend.ListFilter{})
}

// Balances recomputes the per-partner position from the full exchange list.
func (s *Service) Balances(ctx context.Context) (domain.BalanceSummary, error) {
	list, err := s.backend.ListExchanges(ctx, backend.ListFilter{})
	if err != nil {
		return domain.BalanceSummary{}, err
	}
	return Summarize(ComputeBalances(list)), nil
}

// PartnerHistory returns the exchange history with one partner and the
// balance derived from it.
func (s *Service) PartnerHistory(ctx context.Context, partnerID int64) (History, error) {
	list, err := s.backend.History(ctx, partnerID)
	if err != nil {
		return History{}, err
	}
	h := History{PartnerID: partnerID, Exchanges: decorate(list)}
	if balances := ComputeBalances(list); len(balances) > 0 {
		h.Balance = balances[0]
	} else {
		h.Balance = domain.PharmacyBalance{PartnerID: partnerID}
	}
	return h, nil
}

func (s *Service) lookup(ctx context.Context, id int64) (domain.Exchange, error) {
	list, err := s.backend.ListExchanges(ctx, backend.ListFilter{})
	if err != nil {
		return domain.Exchange{}, err
	}
	for _, ex := range list {
		if ex.ID == id {
			return ex, nil
		}
	}
	return domain.Exchange{}, fmt.Errorf("exchange %d: %w", id, backend.ErrNotFound)
}

func (s *Service) begin(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) end(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func decorate(list []domain.Exchange) []Row {
	rows := make([]Row, 0, len(list))
	for _, ex := range list {
		rows = append(rows, Row{
			Exchange:         ex,
			AvailableActions: AvailableActions(ex.Status, ex.Direction),
		})
	}
	return rows
}
