// Package mailing talks to the Brevo v3 API and keeps remote contacts and lists in step
// with local subscription state.
package mailing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when Brevo answers 404.
	ErrNotFound = errors.New("brevo: not found")
	// ErrNotConfigured is returned by every call when no API key is set.
	ErrNotConfigured = errors.New("brevo: api key not configured")
)

// MaxMessageVersions is the number of recipients sent per transactional request.
const MaxMessageVersions = 1000

// APIError is a non-2xx Brevo response other than 404.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brevo: %d %s: %s", e.Status, e.Code, e.Message)
}

// PartialDeliveryError is returned by SendEmail when a later batch failed after earlier
// batches were accepted. Delivered counts the accepted recipients, which are the first
// Delivered entries of Email.To.
type PartialDeliveryError struct {
	Delivered int
	Err       error
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("delivered to %d recipients before: %v", e.Delivered, e.Err)
}

func (e *PartialDeliveryError) Unwrap() error { return e.Err }

// Config holds Brevo settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is a minimal Brevo REST client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Brevo client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.APIKey == "" {
		logger.Warn("brevo api key not set; mailing calls will fail")
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// GetContact looks a contact up by email.
func (c *Client) GetContact(ctx context.Context, email string) (*Contact, error) {
	var contact Contact
	if err := c.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(email), nil, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// CreateContact creates a contact and returns its id.
func (c *Client) CreateContact(ctx context.Context, email string) (int64, error) {
	var out createdResponse
	if err := c.do(ctx, http.MethodPost, "/contacts", createContactRequest{Email: email}, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// DeleteContact deletes a contact by id.
func (c *Client) DeleteContact(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/contacts/%d", id), nil, nil)
}

// AddToList adds contacts to a list.
func (c *Client) AddToList(ctx context.Context, listID int64, contactIDs ...int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/contacts/lists/%d/contacts/add", listID), listContactsRequest{IDs: contactIDs}, nil)
}

// RemoveFromList removes contacts from a list.
func (c *Client) RemoveFromList(ctx context.Context, listID int64, contactIDs ...int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/contacts/lists/%d/contacts/remove", listID), listContactsRequest{IDs: contactIDs}, nil)
}

// ListFolders returns a page of contact folders.
func (c *Client) ListFolders(ctx context.Context, limit, offset int) ([]Folder, error) {
	var out foldersResponse
	path := fmt.Sprintf("/contacts/folders?limit=%d&offset=%d", limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}

// CreateList creates a contact list in folderID and returns its id.
func (c *Client) CreateList(ctx context.Context, name string, folderID int64) (int64, error) {
	var out createdResponse
	if err := c.do(ctx, http.MethodPost, "/contacts/lists", createListRequest{Name: name, FolderID: folderID}, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// DeleteList deletes a contact list.
func (c *Client) DeleteList(ctx context.Context, listID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/contacts/lists/%d", listID), nil, nil)
}

// SendEmail delivers msg to every recipient, one message version each, in batches of
// MaxMessageVersions. It stops at the first failed batch; when earlier batches went out
// the error is a *PartialDeliveryError.
func (c *Client) SendEmail(ctx context.Context, msg Email) error {
	if len(msg.To) == 0 {
		return nil
	}
	for start := 0; start < len(msg.To); start += MaxMessageVersions {
		end := min(start+MaxMessageVersions, len(msg.To))
		req := emailRequest{
			Sender:      msg.Sender,
			ReplyTo:     msg.ReplyTo,
			Subject:     msg.Subject,
			HTMLContent: msg.HTML,
			Tags:        msg.Tags,
		}
		for _, to := range msg.To[start:end] {
			req.MessageVersions = append(req.MessageVersions, messageVersion{To: []Address{{Email: to}}})
		}
		if err := c.do(ctx, http.MethodPost, "/smtp/email", req, nil); err != nil {
			err = fmt.Errorf("send batch %d-%d: %w", start, end, err)
			if start > 0 {
				return &PartialDeliveryError{Delivered: start, Err: err}
			}
			return err
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			apiErr.Code, apiErr.Message = eb.Code, eb.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
