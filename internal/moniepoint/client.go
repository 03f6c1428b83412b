package moniepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("moniepoint api key not configured")

// GatewayError is returned for any non-2xx gateway response.
type GatewayError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("moniepoint %s failed: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Gateway is the subset of the Moniepoint API the escrow workflow depends on.
type Gateway interface {
	CreateVirtualAccount(ctx context.Context, requestID string, amount int64, coopName string) (*VirtualAccount, error)
	CheckBalance(ctx context.Context, accountNumber string) (*Balance, error)
	SettleFunds(ctx context.Context, t Transfer) (*TransferResult, error)
	RefundFunds(ctx context.Context, t Transfer) (*TransferResult, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the Moniepoint REST API. It never retries; retry policy
// belongs to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) CreateVirtualAccount(ctx context.Context, requestID string, amount int64, coopName string) (*VirtualAccount, error) {
	short := requestID
	if len(short) > 8 {
		short = short[:8]
	}
	req := createAccountRequest{
		AccountName:  "Coopa Escrow - " + short,
		Amount:       amount,
		Reference:    "COOPA-" + requestID,
		CustomerName: coopName,
	}

	var resp createAccountResponse
	if err := c.post(ctx, "create virtual account", "/virtual-account/create", req, &resp); err != nil {
		return nil, err
	}

	return &VirtualAccount{
		AccountNumber: resp.AccountNumber,
		AccountName:   resp.AccountName,
		BankName:      BankName,
		Reference:     resp.Reference,
	}, nil
}

func (c *Client) CheckBalance(ctx context.Context, accountNumber string) (*Balance, error) {
	var resp balanceResponse
	if err := c.post(ctx, "check balance", "/virtual-account/balance", balanceRequest{AccountNumber: accountNumber}, &resp); err != nil {
		return nil, err
	}
	return &Balance{
		Balance:  int64(math.Round(resp.Balance)),
		Currency: "NGN",
		Verified: true,
	}, nil
}

func (c *Client) SettleFunds(ctx context.Context, t Transfer) (*TransferResult, error) {
	return c.transfer(ctx, "settle funds", "/virtual-account/settle", t)
}

func (c *Client) RefundFunds(ctx context.Context, t Transfer) (*TransferResult, error) {
	return c.transfer(ctx, "refund funds", "/virtual-account/refund", t)
}

func (c *Client) transfer(ctx context.Context, op, path string, t Transfer) (*TransferResult, error) {
	req := transferRequest{
		SourceAccount:            t.SourceAccount,
		Amount:                   t.Amount,
		DestinationBankCode:      t.DestinationBankCode,
		DestinationAccountNumber: t.DestinationAccountNumber,
		DestinationAccountName:   t.DestinationAccountName,
		Reference:                t.Reference,
	}
	var resp transferResponse
	if err := c.post(ctx, op, path, req, &resp); err != nil {
		return nil, err
	}
	return &TransferResult{TransactionID: resp.TransactionID, Status: strings.ToLower(resp.Status)}, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("moniepoint %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &GatewayError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
