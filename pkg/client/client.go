// Package client is a thin HTTP client for the tokenlease API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tokenlease/pkg/accounts"
	"tokenlease/pkg/assets"
	"tokenlease/pkg/custody"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/rental"
	"tokenlease/pkg/tokens"
)

type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// CACertPath trusts an extra CA, for servers running a self-signed cert.
	CACertPath string
	Timeout    time.Duration
}

// APIError is a failed response envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	c       *http.Client
	baseURL string
	token   string
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		rootCAs := x509.NewCertPool()
		if !rootCAs.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACertPath)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: rootCAs, MinVersion: tls.VersionTLS12}
	}

	return &Client{
		c:       &http.Client{Transport: transport, Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) (accounts.Account, error) {
	var out accounts.Account
	body := map[string]string{"name": name, "email": email, "password": password}
	err := c.call(ctx, http.MethodPost, "/accounts", body, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (accounts.Session, error) {
	var out accounts.Session
	body := map[string]string{"email": email, "password": password}
	err := c.call(ctx, http.MethodPost, "/accounts/login", body, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (accounts.Profile, error) {
	var out accounts.Profile
	err := c.call(ctx, http.MethodGet, "/accounts/me", nil, &out)
	return out, err
}

func (c *Client) SetAcceptsPayments(ctx context.Context, accepts bool) (accounts.Profile, error) {
	var out accounts.Profile
	err := c.call(ctx, http.MethodPatch, "/accounts/me/payments", map[string]bool{"accepts_payments": accepts}, &out)
	return out, err
}

func (c *Client) Deposit(ctx context.Context, to tokens.Address, amount int64) (ledger.Account, error) {
	var out ledger.Account
	path := "/accounts/" + url.PathEscape(string(to)) + "/deposit"
	err := c.call(ctx, http.MethodPost, path, map[string]int64{"amount": amount}, &out)
	return out, err
}

func (c *Client) Mint(ctx context.Context, metadata string, price int64) (tokens.Token, error) {
	var out tokens.Token
	body := map[string]any{"metadata": metadata, "price": price}
	err := c.call(ctx, http.MethodPost, "/tokens", body, &out)
	return out, err
}

func (c *Client) GetToken(ctx context.Context, id int64) (tokens.Token, error) {
	var out tokens.Token
	err := c.call(ctx, http.MethodGet, tokenPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) ListTokens(ctx context.Context, filter tokens.Filter, page, limit int) (tokens.TokenList, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if filter.Owner != nil {
		q.Set("owner", string(*filter.Owner))
	}
	if filter.State != nil {
		q.Set("state", string(*filter.State))
	}

	path := "/tokens"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out tokens.TokenList
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Marketplace(ctx context.Context) (assets.ForSaleList, error) {
	var out assets.ForSaleList
	err := c.call(ctx, http.MethodGet, "/marketplace/tokens", nil, &out)
	return out, err
}

func (c *Client) ListForSale(ctx context.Context, id int64) (tokens.Token, error) {
	var out tokens.Token
	err := c.call(ctx, http.MethodPatch, tokenPath(id, "list-for-sale"), nil, &out)
	return out, err
}

func (c *Client) Unlist(ctx context.Context, id int64) (tokens.Token, error) {
	var out tokens.Token
	err := c.call(ctx, http.MethodPatch, tokenPath(id, "unlist"), nil, &out)
	return out, err
}

func (c *Client) Buy(ctx context.Context, id, payment int64) (tokens.Token, error) {
	var out tokens.Token
	err := c.call(ctx, http.MethodPost, tokenPath(id, "buy"), map[string]int64{"payment": payment}, &out)
	return out, err
}

func (c *Client) ListForRent(ctx context.Context, id int64) (tokens.Token, error) {
	var out tokens.Token
	err := c.call(ctx, http.MethodPatch, tokenPath(id, "list-for-rent"), nil, &out)
	return out, err
}

func (c *Client) RentPrice(ctx context.Context, id int64, duration time.Duration) (rental.Quote, error) {
	var out rental.Quote
	path := tokenPath(id, "rent-price") + "?duration=" + strconv.FormatInt(int64(duration/time.Second), 10)
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Rent(ctx context.Context, id int64, duration time.Duration, payment int64) (tokens.Token, error) {
	var out tokens.Token
	body := map[string]int64{"duration_seconds": int64(duration / time.Second), "payment": payment}
	err := c.call(ctx, http.MethodPost, tokenPath(id, "rent"), body, &out)
	return out, err
}

func (c *Client) Retrieve(ctx context.Context, id int64) (tokens.Token, error) {
	var out tokens.Token
	err := c.call(ctx, http.MethodPost, tokenPath(id, "retrieve"), nil, &out)
	return out, err
}

func (c *Client) Transfer(ctx context.Context, id int64, to tokens.Address, safe bool) (tokens.Token, error) {
	var out tokens.Token
	body := custody.TransferRequest{To: string(to), Safe: safe}
	err := c.call(ctx, http.MethodPost, tokenPath(id, "transfer"), body, &out)
	return out, err
}

func (c *Client) Approve(ctx context.Context, id int64, spender tokens.Address) (tokens.Token, error) {
	var out tokens.Token
	body := custody.ApproveRequest{Spender: string(spender)}
	err := c.call(ctx, http.MethodPost, tokenPath(id, "approve"), body, &out)
	return out, err
}

func (c *Client) Custody(ctx context.Context, id int64) (custody.Holding, error) {
	var out custody.Holding
	err := c.call(ctx, http.MethodGet, tokenPath(id, "custody"), nil, &out)
	return out, err
}

func tokenPath(id int64, action string) string {
	p := "/tokens/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request to [%s]: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("request to [%s]: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from [%s]: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response from [%s]: %w", path, err)
	}
	return nil
}
