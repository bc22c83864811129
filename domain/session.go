package domain

import "time"

// Session is the authenticated context for the acting pharmacy. It is the
// single source of the bearer token; components receive it injected rather
// than reading storage ad hoc.
type Session struct {
	Token        string    `db:"token" json:"token,omitempty"`
	UserID       int64     `db:"user_id" json:"user_id"`
	Username     string    `db:"username" json:"username"`
	Role         string    `db:"role" json:"role"`
	PharmacyID   int64     `db:"pharmacy_id" json:"pharmacy_id"`
	PharmacyName string    `db:"pharmacy_name" json:"pharmacy_name"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the session token is past its expiry.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// AuditEntry records one diagnostics action.
type AuditEntry struct {
	ID        string `db:"id" json:"id"`
	Actor     string `db:"actor" json:"actor"`
	Action    string `db:"action" json:"action"`
	Detail    string `db:"detail" json:"detail,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}
