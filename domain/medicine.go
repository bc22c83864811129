package domain

type Medicine struct {
	ID           int64   `json:"id"`
	BrandName    string  `json:"brand_name"`
	GenericName  string  `json:"generic_name,omitempty"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Type         string  `json:"type,omitempty"`
	UnitPrice    float64 `json:"unit_price"`
}
