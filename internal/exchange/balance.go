package exchange

import (
	"sort"

	"pharmex/m/domain"
)

// ComputeBalances derives per-partner exposure from the authoritative
// exchange list. Only COMPLETED exchanges count: a pending or approved
// request has not moved stock, so it creates no debt. The result is
// recomputed on every load and never cached.
func ComputeBalances(list []domain.Exchange) []domain.PharmacyBalance {
	byPartner := map[int64]*domain.PharmacyBalance{}
	for _, ex := range list {
		if ex.Status != domain.StatusCompleted {
			continue
		}
		partner := ex.PartnerID()
		b, ok := byPartner[partner]
		if !ok {
			b = &domain.PharmacyBalance{PartnerID: partner, PartnerName: ex.PartnerName()}
			byPartner[partner] = b
		}
		if b.PartnerName == "" {
			b.PartnerName = ex.PartnerName()
		}
		if ex.Direction == domain.DirectionOut {
			b.Outgoing += ex.Total
		} else {
			b.Incoming += ex.Total
		}
	}

	balances := make([]domain.PharmacyBalance, 0, len(byPartner))
	for _, b := range byPartner {
		b.Net = b.Outgoing - b.Incoming
		balances = append(balances, *b)
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].PartnerName != balances[j].PartnerName {
			return balances[i].PartnerName < balances[j].PartnerName
		}
		return balances[i].PartnerID < balances[j].PartnerID
	})
	return balances
}

// Summarize folds partner balances into the global position. A positive net
// means the partner owes the acting pharmacy.
func Summarize(balances []domain.PharmacyBalance) domain.BalanceSummary {
	summary := domain.BalanceSummary{Balances: balances}
	for _, b := range balances {
		summary.NetPosition += b.Net
		if b.Net > 0 {
			summary.TotalReceivable += b.Net
		} else {
			summary.TotalPayable += -b.Net
		}
	}
	return summary
}
