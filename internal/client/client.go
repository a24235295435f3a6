// Package client is a typed Go client for the finance-admin REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
)

// DefaultTimeout bounds every request when no http.Client is supplied.
const DefaultTimeout = 60 * time.Second

// ErrNotConfirmed is returned by destructive calls when the Confirmer declines.
var ErrNotConfirmed = errors.New("operation not confirmed")

// APIError is a non-2xx response. Message is the server's error string verbatim.
type APIError struct {
	StatusCode int
	Message    string
	Issues     json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to one API deployment.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API rooted at baseURL, e.g.
// "http://localhost:5000/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("New: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("New: base URL %q must be http or https", baseURL)
	}
	u.RawQuery, u.Fragment = "", ""

	c := &Client{
		base: strings.TrimRight(u.String(), "/"),
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListUsers returns every user.
func (c *Client) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "users"), nil, "", &users); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	return users, nil
}

// GetUser returns one user.
func (c *Client) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "users", userID), nil, &user); err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}
	return &user, nil
}

// CreateUser creates a user.
func (c *Client) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	var created domain.User
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, "users"), user, &created); err != nil {
		return nil, fmt.Errorf("CreateUser: %w", err)
	}
	return &created, nil
}

// UpdateUser applies a partial update.
func (c *Client) UpdateUser(ctx context.Context, userID string, patch domain.UserPatch) (*domain.User, error) {
	var updated domain.User
	if err := c.doJSON(ctx, http.MethodPut, c.endpoint(nil, "users", userID), patch, &updated); err != nil {
		return nil, fmt.Errorf("UpdateUser: %w", err)
	}
	return &updated, nil
}

// DeleteUser deletes a user after confirm approves. cascade, when non-nil,
// overrides the server's delete policy.
func (c *Client) DeleteUser(ctx context.Context, confirm Confirmer, userID string, cascade *bool) error {
	prompt := fmt.Sprintf("Delete user %s?", userID)
	if cascade == nil || *cascade {
		prompt = fmt.Sprintf("Delete user %s and all of their transactions?", userID)
	}
	if err := c.confirm(ctx, confirm, prompt); err != nil {
		return fmt.Errorf("DeleteUser: %w", err)
	}

	var q url.Values
	if cascade != nil {
		q = url.Values{"cascade": {fmt.Sprint(*cascade)}}
	}
	if err := c.do(ctx, http.MethodDelete, c.endpoint(q, "users", userID), nil, "", nil); err != nil {
		return fmt.Errorf("DeleteUser: %w", err)
	}
	return nil
}

// ListTransactions returns transactions, optionally bounded by [from, to).
func (c *Client) ListTransactions(ctx context.Context, from, to time.Time) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	if err := c.do(ctx, http.MethodGet, c.endpoint(rangeQuery(from, to), "transactions"), nil, "", &txs); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return txs, nil
}

// ListUserTransactions returns the transactions linked to userID.
func (c *Client) ListUserTransactions(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "transactions", "user", userID), nil, "", &txs); err != nil {
		return nil, fmt.Errorf("ListUserTransactions: %w", err)
	}
	return txs, nil
}

// GetTransaction returns one transaction.
func (c *Client) GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "transactions", reference), nil, &tx); err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return &tx, nil
}

// CreateTransaction creates a transaction.
func (c *Client) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	var created domain.Transaction
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, "transactions"), tx, &created); err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	return &created, nil
}

// UpdateTransaction applies a partial update.
func (c *Client) UpdateTransaction(ctx context.Context, reference string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	var updated domain.Transaction
	if err := c.doJSON(ctx, http.MethodPut, c.endpoint(nil, "transactions", reference), patch, &updated); err != nil {
		return nil, fmt.Errorf("UpdateTransaction: %w", err)
	}
	return &updated, nil
}

// DeleteTransaction deletes a transaction after confirm approves.
func (c *Client) DeleteTransaction(ctx context.Context, confirm Confirmer, reference string) error {
	if err := c.confirm(ctx, confirm, fmt.Sprintf("Delete transaction %s?", reference)); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if err := c.do(ctx, http.MethodDelete, c.endpoint(nil, "transactions", reference), nil, "", nil); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	return nil
}

// Stats returns the dashboard totals.
func (c *Client) Stats(ctx context.Context) (*domain.Summary, error) {
	var s domain.Summary
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "stats"), nil, &s); err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	return &s, nil
}

// UploadArchive posts a ZIP archive as the zipFile form field.
func (c *Client) UploadArchive(ctx context.Context, filename string, archive io.Reader) (*domain.UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("zipFile", path.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("UploadArchive: creating form: %w", err)
	}
	if _, err := io.Copy(part, archive); err != nil {
		return nil, fmt.Errorf("UploadArchive: reading archive: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("UploadArchive: closing form: %w", err)
	}

	var result domain.UploadResult
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil, "upload"), &body, mw.FormDataContentType(), &result); err != nil {
		return nil, fmt.Errorf("UploadArchive: %w", err)
	}
	return &result, nil
}

func (c *Client) confirm(ctx context.Context, confirm Confirmer, prompt string) error {
	if confirm == nil {
		return ErrNotConfirmed
	}
	ok, err := confirm.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("confirmation: %w", err)
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(q url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	target := c.base + "/" + strings.Join(escaped, "/")
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return target
}

func (c *Client) doJSON(ctx context.Context, method, target string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, target, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error  string          `json:"error"`
		Issues json.RawMessage `json:"issues"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Issues = body.Issues
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

func rangeQuery(from, to time.Time) url.Values {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	return q
}
