package exchange

import (
	"fmt"

	"pharmex/m/domain"
	"pharmex/m/internal/backend"
)

// DraftItem is one line of an exchange under construction. The price shown is
// the medicine's current price; the backend snapshots the authoritative price
// at creation time.
type DraftItem struct {
	Medicine domain.Medicine `json:"medicine"`
	Quantity int64           `json:"quantity"`
}

// Draft is the client-side model of the exchange creation form. Validation
// here exists to avoid round trips; the backend revalidates everything.
type Draft struct {
	DestPharmacyID   int64       `json:"dest_pharmacy_id"`
	DestPharmacyName string      `json:"dest_pharmacy_name,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	Items            []DraftItem `json:"items"`
}

// AddMedicine adds a line for the medicine, or bumps the existing line's
// quantity by one when the medicine is already present.
func (d *Draft) AddMedicine(m domain.Medicine) {
	d.AddQuantity(m, 1)
}

// AddQuantity merges qty units of the medicine into the draft, creating the
// line when absent.
func (d *Draft) AddQuantity(m domain.Medicine, qty int64) {
	for i := range d.Items {
		if d.Items[i].Medicine.ID == m.ID {
			d.Items[i].Quantity += qty
			return
		}
	}
	d.Items = append(d.Items, DraftItem{Medicine: m, Quantity: qty})
}

// SetQuantity overwrites a line's quantity. Returns false when the medicine
// is not in the draft.
func (d *Draft) SetQuantity(medicineID, quantity int64) bool {
	for i := range d.Items {
		if d.Items[i].Medicine.ID == medicineID {
			d.Items[i].Quantity = quantity
			return true
		}
	}
	return false
}

// RemoveMedicine drops a line. Returns false when the medicine is not in the
// draft.
func (d *Draft) RemoveMedicine(medicineID int64) bool {
	for i := range d.Items {
		if d.Items[i].Medicine.ID == medicineID {
			d.Items = append(d.Items[:i], d.Items[i+1:]...)
			return true
		}
	}
	return false
}

// TotalQuantity is the pre-submission summary count.
func (d *Draft) TotalQuantity() int64 {
	var total int64
	for _, it := range d.Items {
		total += it.Quantity
	}
	return total
}

// EstimatedValue sums quantity times current unit price. This is a preview
// figure only; the snapshotted total comes back from the backend.
func (d *Draft) EstimatedValue() float64 {
	var total float64
	for _, it := range d.Items {
		total += float64(it.Quantity) * it.Medicine.UnitPrice
	}
	return total
}

// Validate checks the draft against the acting pharmacy. A non-nil result is
// a *backend.ValidationError so field messages land next to the right input.
func (d *Draft) Validate(actingPharmacyID int64) error {
	fields := map[string]string{}
	if d.DestPharmacyID == 0 {
		fields["dest_pharmacy"] = "destination pharmacy is required"
	} else if d.DestPharmacyID == actingPharmacyID {
		fields["dest_pharmacy"] = "destination must differ from the acting pharmacy"
	}
	if len(d.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	for i, it := range d.Items {
		if it.Medicine.ID == 0 {
			fields[fmt.Sprintf("items[%d].medicine", i)] = "medicine is required"
		}
		if it.Quantity <= 0 {
			fields[fmt.Sprintf("items[%d].quantity", i)] = "quantity must be at least 1"
		}
	}
	if len(fields) > 0 {
		return &backend.ValidationError{Message: "invalid exchange draft", Fields: fields}
	}
	return nil
}

// Request builds the creation payload for a validated draft.
func (d *Draft) Request() backend.CreateExchangeRequest {
	req := backend.CreateExchangeRequest{
		DestPharmacy: d.DestPharmacyID,
		Notes:        d.Notes,
		Items:        make([]backend.CreateExchangeItem, 0, len(d.Items)),
	}
	for _, it := range d.Items {
		req.Items = append(req.Items, backend.CreateExchangeItem{
			Medicine: it.Medicine.ID,
			Quantity: it.Quantity,
		})
	}
	return req
}
