package domain

// PartnerPharmacy is a read-only reference entity owned by the backend.
type PartnerPharmacy struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Owner   string `json:"owner,omitempty"`
}

// PharmacyBalance is the derived exposure against one partner. It is never
// stored; it is recomputed from the exchange list on every load.
type PharmacyBalance struct {
	PartnerID   int64   `json:"partner_id"`
	PartnerName string  `json:"partner_name,omitempty"`
	Outgoing    float64 `json:"outgoing_total"`
	Incoming    float64 `json:"incoming_total"`
	Net         float64 `json:"net_balance"` // positive: partner owes us
}

// BalanceSummary aggregates all partner balances for the acting pharmacy.
type BalanceSummary struct {
	TotalReceivable float64           `json:"total_receivable"`
	TotalPayable    float64           `json:"total_payable"`
	NetPosition     float64           `json:"net_position"`
	Balances        []PharmacyBalance `json:"balances"`
}
