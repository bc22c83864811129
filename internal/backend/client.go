package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pharmex/m/domain"
)

// SessionSource is the single place the client reads the bearer token from.
// A 401 from any endpoint invalidates it; the client never retries after that.
type SessionSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Client issues authenticated HTTP calls against the pharmacy backend. All
// business logic (stock arithmetic, authorization) lives on the other side;
// this side only shapes requests and decodes responses.
type Client struct {
	base    string
	http    *http.Client
	session SessionSource
	log     *zap.Logger
}

func New(baseURL string, session SessionSource, timeout time.Duration, log *zap.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		base:    baseURL,
		http:    &http.Client{Timeout: timeout},
		session: session,
		log:     log,
	}
}

type CreateExchangeItem struct {
	Medicine int64 `json:"medicine"`
	Quantity int64 `json:"quantity"`
}

type CreateExchangeRequest struct {
	DestPharmacy int64                `json:"dest_pharmacy"`
	Items        []CreateExchangeItem `json:"items"`
	Notes        string               `json:"notes,omitempty"`
}

// ListFilter narrows the exchange list. Zero values mean "no filter".
type ListFilter struct {
	Status  domain.ExchangeStatus
	Partner int64
}

type LoginUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginPharmacy struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type LoginResponse struct {
	Token    string        `json:"token"`
	User     LoginUser     `json:"user"`
	Pharmacy LoginPharmacy `json:"pharmacy"`
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var out LoginResponse
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "auth/login/", body, &out, false, nil)
	return out, err
}

func (c *Client) CreateExchange(ctx context.Context, req CreateExchangeRequest) (domain.Exchange, error) {
	var out domain.Exchange
	err := c.do(ctx, http.MethodPost, "exchange/create/", req, &out, true, nil)
	return out, err
}

func (c *Client) ListExchanges(ctx context.Context, f ListFilter) ([]domain.Exchange, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Partner > 0 {
		q.Set("partner", strconv.FormatInt(f.Partner, 10))
	}
	path := "exchange/list/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return listOf[domain.Exchange](c, ctx, path)
}

func (c *Client) ListPartners(ctx context.Context) ([]domain.PartnerPharmacy, error) {
	return listOf[domain.PartnerPharmacy](c, ctx, "exchange/partners/")
}

// Action posts one state transition. Each attempt carries a fresh
// Idempotency-Key so a retried POST cannot apply twice server-side.
func (c *Client) Action(ctx context.Context, id int64, action, reason string) (domain.Exchange, error) {
	var out domain.Exchange
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	path := fmt.Sprintf("exchange/%d/action/%s/", id, action)
	err := c.do(ctx, http.MethodPost, path, body, &out, true, idempotencyKey())
	return out, err
}

// Process materializes the stock transfer for an approved exchange.
func (c *Client) Process(ctx context.Context, id int64) (domain.Exchange, error) {
	var out domain.Exchange
	path := fmt.Sprintf("exchange/%d/process/", id)
	err := c.do(ctx, http.MethodPost, path, nil, &out, true, idempotencyKey())
	return out, err
}

func (c *Client) Balances(ctx context.Context) ([]domain.PharmacyBalance, error) {
	return listOf[domain.PharmacyBalance](c, ctx, "exchange/balance/")
}

func (c *Client) History(ctx context.Context, pharmacyID int64) ([]domain.Exchange, error) {
	return listOf[domain.Exchange](c, ctx, fmt.Sprintf("exchange/history/%d/", pharmacyID))
}

func (c *Client) SearchMedicines(ctx context.Context, query string) ([]domain.Medicine, error) {
	q := url.Values{"query": []string{query}}
	return listOf[domain.Medicine](c, ctx, "medicine/search/?"+q.Encode())
}

// Ping checks backend reachability for the diagnostics panel.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health/", nil, nil, false, nil)
}

func idempotencyKey() map[string]string {
	return map[string]string{"Idempotency-Key": uuid.NewString()}
}

// listEnvelope is the documented collection shape. Anything else is a decode
// error, never a silent empty slice.
type listEnvelope[T any] struct {
	Results []T `json:"results"`
	Count   int `json:"count,omitempty"`
}

func listOf[T any](c *Client, ctx context.Context, path string) ([]T, error) {
	var env listEnvelope[T]
	if err := c.do(ctx, http.MethodGet, path, nil, &env, true, nil); err != nil {
		return nil, err
	}
	if env.Results == nil {
		return nil, fmt.Errorf("decode %s: response missing results envelope", path)
	}
	return env.Results, nil
}

type errorBody struct {
	Error  string            `json:"error"`
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, auth bool, headers map[string]string) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if auth {
		token, err := c.session.Token(ctx)
		if err != nil || token == "" {
			_ = c.session.Invalidate(ctx)
			return ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Superseded queries surface their cancellation untouched so the
		// caller can tell "stale" apart from "backend down".
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	c.log.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_ = c.session.Invalidate(ctx)
		return ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", readErrorMessage(resp.Body), ErrConflict)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrUnavailable)
	case resp.StatusCode >= 400:
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Detail
		}
		if msg == "" {
			msg = fmt.Sprintf("request rejected (status %d)", resp.StatusCode)
		}
		return &ValidationError{Message: msg, Fields: eb.Errors}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	var eb errorBody
	if err := json.NewDecoder(r).Decode(&eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Detail != "" {
			return eb.Detail
		}
	}
	return "exchange was modified by another actor"
}
