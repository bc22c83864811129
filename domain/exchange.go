package domain

// ExchangeStatus is the lifecycle state of an exchange as reported by the
// backend. Only the backend mutates it; this side never guesses.
type ExchangeStatus string

const (
	StatusPending   ExchangeStatus = "PENDING"
	StatusApproved  ExchangeStatus = "APPROVED"
	StatusCompleted ExchangeStatus = "COMPLETED"
	StatusRejected  ExchangeStatus = "REJECTED"
	StatusCancelled ExchangeStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s ExchangeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// Direction of an exchange relative to the acting pharmacy.
type Direction string

const (
	DirectionOut Direction = "OUT" // acting pharmacy is the source
	DirectionIn  Direction = "IN"  // acting pharmacy is the destination
)

type ExchangeItem struct {
	MedicineID   int64   `json:"medicine_id"`
	MedicineName string  `json:"medicine_name,omitempty"`
	Quantity     int64   `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	Subtotal     float64 `json:"subtotal"`
}

type Exchange struct {
	ID                 int64          `json:"id"`
	Direction          Direction      `json:"direction"`
	SourcePharmacyID   int64          `json:"source_pharmacy_id"`
	SourcePharmacyName string         `json:"source_pharmacy_name,omitempty"`
	DestPharmacyID     int64          `json:"dest_pharmacy_id"`
	DestPharmacyName   string         `json:"dest_pharmacy_name,omitempty"`
	Items              []ExchangeItem `json:"items"`
	Status             ExchangeStatus `json:"status"`
	Notes              string         `json:"notes,omitempty"`
	Total              float64        `json:"total"`
	CreatedAt          string         `json:"created_at"`
}

// PartnerID returns the other pharmacy of the exchange from the acting
// pharmacy's perspective.
func (e Exchange) PartnerID() int64 {
	if e.Direction == DirectionOut {
		return e.DestPharmacyID
	}
	return e.SourcePharmacyID
}

// PartnerName returns the display name matching PartnerID.
func (e Exchange) PartnerName() string {
	if e.Direction == DirectionOut {
		return e.DestPharmacyName
	}
	return e.SourcePharmacyName
}
