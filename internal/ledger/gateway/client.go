// Package gateway is the ledger facade backed by a remote ledger gateway over HTTP.
//
// Transient failures (network errors, 5xx, 429) are retried with exponential backoff
// under a single idempotency key, then surface as ports.ErrLedgerUnavailable. A circuit
// breaker fails fast while the gateway is down.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/ports"
	"touristid/pkg/platform/circuit"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	MaxRetries       uint64
	InitialBackoff   time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Client implements ports.Ledger.
type Client struct {
	baseURL        string
	apiKey         string
	http           *http.Client
	breaker        *circuit.Breaker
	logger         *slog.Logger
	maxRetries     uint64
	initialBackoff time.Duration
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuit.New("ledger",
			circuit.WithFailureThreshold(cfg.BreakerThreshold),
			circuit.WithCooldown(cfg.BreakerCooldown),
		),
		logger:         slog.Default(),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: initial,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type mintRequest struct {
	SubjectID     string    `json:"touristId"`
	WalletAddress string    `json:"walletAddress"`
	DataHash      string    `json:"dataHash"`
	KeyRef        string    `json:"keyRef"`
	SealedPayload []byte    `json:"encryptedPayload"`
	ExpiresAt     time.Time `json:"expiresAt"`
	IssuerID      string    `json:"issuerId,omitempty"`
	IssuerRole    string    `json:"issuerRole,omitempty"`
}

type mintResponse struct {
	CredentialID string `json:"blockchainId"`
	TxHash       string `json:"transactionHash"`
}

func (c *Client) Mint(ctx context.Context, req ports.MintRequest) (ports.MintReceipt, error) {
	var out mintResponse
	err := c.do(ctx, http.MethodPost, "/credentials", mintRequest{
		SubjectID:     req.SubjectID,
		WalletAddress: req.WalletAddress,
		DataHash:      req.DataHash,
		KeyRef:        req.KeyRef,
		SealedPayload: req.SealedPayload,
		ExpiresAt:     req.ExpiresAt,
		IssuerID:      req.Issuer.ID,
		IssuerRole:    string(req.Issuer.Role),
	}, &out)
	if err != nil {
		return ports.MintReceipt{}, err
	}
	if out.CredentialID == "" {
		return ports.MintReceipt{}, fmt.Errorf("mint: empty credential id: %w", ports.ErrLedgerUnavailable)
	}
	return ports.MintReceipt{CredentialID: out.CredentialID, TxRef: out.TxHash}, nil
}

type accessRequest struct {
	AccessorID      string `json:"accessorId"`
	AccessorRole    string `json:"accessorRole"`
	AccessorAddress string `json:"accessorAddress,omitempty"`
	Reason          string `json:"accessReason"`
	Emergency       bool   `json:"emergencyAccess"`
}

type accessResponse struct {
	Disclosure models.Disclosure `json:"disclosure"`
	TxHash     string            `json:"transactionHash"`
}

func (c *Client) AuthorizeAccess(ctx context.Context, grant ports.AccessGrant) (ports.AccessReceipt, error) {
	var out accessResponse
	err := c.do(ctx, http.MethodPost, credentialPath(grant.CredentialID, "access"), accessRequest{
		AccessorID:      grant.Accessor.ID,
		AccessorRole:    string(grant.Accessor.Role),
		AccessorAddress: grant.Accessor.Address,
		Reason:          grant.Reason,
		Emergency:       grant.Emergency,
	}, &out)
	if err != nil {
		return ports.AccessReceipt{}, err
	}
	return ports.AccessReceipt{Disclosure: out.Disclosure, TxRef: out.TxHash}, nil
}

type consentResponse struct {
	Previous models.ConsentSettings `json:"previousConsent"`
	Updated  models.ConsentSettings `json:"updatedConsent"`
	TxHash   string                 `json:"transactionHash"`
}

func (c *Client) SetConsent(ctx context.Context, credentialID string, settings models.ConsentSettings) (ports.ConsentReceipt, error) {
	var out consentResponse
	body := map[string]models.ConsentSettings{"consentSettings": settings}
	if err := c.do(ctx, http.MethodPut, credentialPath(credentialID, "consent"), body, &out); err != nil {
		return ports.ConsentReceipt{}, err
	}
	return ports.ConsentReceipt{Previous: out.Previous, Updated: out.Updated, TxRef: out.TxHash}, nil
}

type lostRequest struct {
	Reason           string `json:"reason"`
	NewWalletAddress string `json:"newWalletAddress,omitempty"`
	ReporterID       string `json:"reporterId,omitempty"`
}

type lostResponse struct {
	ReplacementID string `json:"replacementId"`
	TxHash        string `json:"transactionHash"`
}

func (c *Client) ReportLost(ctx context.Context, req ports.LostRequest) (ports.LostReceipt, error) {
	var out lostResponse
	err := c.do(ctx, http.MethodPost, credentialPath(req.CredentialID, "lost"), lostRequest{
		Reason:           req.Reason,
		NewWalletAddress: req.NewWalletAddress,
		ReporterID:       req.Reporter.ID,
	}, &out)
	if err != nil {
		return ports.LostReceipt{}, err
	}
	if out.ReplacementID == "" {
		return ports.LostReceipt{}, fmt.Errorf("report lost: empty replacement id: %w", ports.ErrLedgerUnavailable)
	}
	return ports.LostReceipt{ReplacementID: out.ReplacementID, TxRef: out.TxHash}, nil
}

type txResponse struct {
	TxHash string `json:"transactionHash"`
}

func (c *Client) Expire(ctx context.Context, credentialID string) (string, error) {
	var out txResponse
	if err := c.do(ctx, http.MethodPost, credentialPath(credentialID, "expire"), struct{}{}, &out); err != nil {
		return "", err
	}
	return out.TxHash, nil
}

func (c *Client) Revoke(ctx context.Context, credentialID, reason string) (string, error) {
	var out txResponse
	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, credentialPath(credentialID, "revoke"), body, &out); err != nil {
		return "", err
	}
	return out.TxHash, nil
}

// BreakerOpen reports whether calls are currently failing fast.
func (c *Client) BreakerOpen() bool {
	return c.breaker.IsOpen()
}

func credentialPath(id, action string) string {
	return "/credentials/" + url.PathEscape(id) + "/" + action
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("%s %s: circuit open: %w", method, path, ports.ErrLedgerUnavailable)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode ledger request: %w", err)
	}
	idempotencyKey := uuid.NewString()

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build ledger request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Idempotency-Key", idempotencyKey)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w: %w", method, path, ports.ErrLedgerUnavailable, err)
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("%s %s: read body: %w: %w", method, path, ports.ErrLedgerUnavailable, err)
		}
		return classify(method, path, resp.StatusCode, raw, out)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	err = backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
	if err != nil && !errors.Is(err, ports.ErrLedgerRejected) && !errors.Is(err, ports.ErrLedgerNotFound) && !errors.Is(err, ports.ErrLedgerUnavailable) {
		err = fmt.Errorf("%s %s: %w: %w", method, path, ports.ErrLedgerUnavailable, err)
	}
	c.record(ctx, err)
	return err
}

func classify(method, path string, status int, raw []byte, out any) error {
	switch {
	case status >= 200 && status < 300:
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s %s: decode response: %w: %w", method, path, ports.ErrLedgerUnavailable, err))
		}
		return nil
	case status == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("%s %s: %s: %w", method, path, describe(raw), ports.ErrLedgerNotFound))
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s %s: status %d: %w", method, path, status, ports.ErrLedgerUnavailable)
	default:
		return backoff.Permanent(fmt.Errorf("%s %s: %s: %w", method, path, describe(raw), ports.ErrLedgerRejected))
	}
}

func describe(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if eb.Description != "" {
			return eb.Description
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return "ledger refused request"
}

func (c *Client) record(ctx context.Context, err error) {
	if errors.Is(err, ports.ErrLedgerUnavailable) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "ledger circuit opened", "breaker", c.breaker.Name(), "error", err)
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "ledger circuit closed", "breaker", c.breaker.Name())
	}
}
