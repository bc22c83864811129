package session

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"pharmex/m/domain"
)

// ErrNoSession means no valid session exists locally; the caller must send
// the user through the login flow.
var ErrNoSession = errors.New("no active session")

// Open opens the local SQLite database holding the session and audit trail.
func Open(dsn string) *sqlx.DB {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open session database: %v", err)
	}
	db.SetMaxOpenConns(1)
	return db
}

// Migrate creates the local schema. There are no business tables here; all
// authoritative state lives in the backend.
func Migrate(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS session (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            token TEXT NOT NULL,
            user_id INTEGER NOT NULL,
            username TEXT NOT NULL,
            role TEXT NOT NULL,
            pharmacy_id INTEGER NOT NULL,
            pharmacy_name TEXT NOT NULL,
            expires_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id TEXT PRIMARY KEY,
            actor TEXT NOT NULL,
            action TEXT NOT NULL,
            detail TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("session migration failed: %v", err)
		}
	}
}

// Store is the explicit session context injected into the API client and the
// gateway. It is the only reader and writer of the token.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
	now func() time.Time
}

func New(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, log: logger, now: time.Now}
}

type tokenClaims struct {
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	PharmacyID int64  `json:"pharmacy_id"`
	jwt.RegisteredClaims
}

// Introspect reads claims from the token without verifying the signature.
// Verification is the backend's job; this side only needs expiry and
// identity for display and proactive re-login.
func Introspect(token string) (userID, pharmacyID int64, role string, expiresAt time.Time, err error) {
	var claims tokenClaims
	if _, _, err = jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return 0, 0, "", time.Time{}, err
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return claims.UserID, claims.PharmacyID, claims.Role, expiresAt, nil
}

type sessionRow struct {
	Token        string `db:"token"`
	UserID       int64  `db:"user_id"`
	Username     string `db:"username"`
	Role         string `db:"role"`
	PharmacyID   int64  `db:"pharmacy_id"`
	PharmacyName string `db:"pharmacy_name"`
	ExpiresAt    string `db:"expires_at"`
}

// Save replaces any existing session. Expiry is taken from the token claims
// when the caller did not supply one.
func (s *Store) Save(ctx context.Context, sess domain.Session) error {
	if sess.ExpiresAt.IsZero() {
		if _, _, _, exp, err := Introspect(sess.Token); err == nil {
			sess.ExpiresAt = exp
		}
	}
	expires := ""
	if !sess.ExpiresAt.IsZero() {
		expires = sess.ExpiresAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session (id, token, user_id, username, role, pharmacy_id, pharmacy_name, expires_at)
         VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.Username, sess.Role, sess.PharmacyID, sess.PharmacyName, expires)
	return err
}

// Current returns the active session, or ErrNoSession. An expired session is
// cleared and treated as absent.
func (s *Store) Current(ctx context.Context) (domain.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT token, user_id, username, role, pharmacy_id, pharmacy_name, expires_at FROM session WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, ErrNoSession
	}
	if err != nil {
		return domain.Session{}, err
	}
	sess := domain.Session{
		Token:        row.Token,
		UserID:       row.UserID,
		Username:     row.Username,
		Role:         row.Role,
		PharmacyID:   row.PharmacyID,
		PharmacyName: row.PharmacyName,
	}
	if row.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, row.ExpiresAt); err == nil {
			sess.ExpiresAt = t
		}
	}
	if sess.Expired(s.now()) {
		s.log.Info("session expired, clearing", zap.Int64("user_id", sess.UserID))
		_ = s.Invalidate(ctx)
		return domain.Session{}, ErrNoSession
	}
	return sess, nil
}

// Token implements backend.SessionSource.
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// Invalidate clears the stored session. Safe to call when none exists.
func (s *Store) Invalidate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session`)
	return err
}

// Audit appends one diagnostics action to the local trail.
func (s *Store) Audit(ctx context.Context, actor, action, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor, action, detail) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), actor, action, detail)
	return err
}

// AuditTrail returns the most recent diagnostics actions, newest first.
func (s *Store) AuditTrail(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []domain.AuditEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT id, actor, action, COALESCE(detail, '') AS detail, created_at FROM audit_log ORDER BY created_at DESC, id LIMIT ?`, limit)
	return entries, err
}
