package reconcile

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

	"finova/internal/core"
	"finova/internal/log"
)

// Store is the record store surface the session reconciles against.
type Store interface {
	CreateRecord(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error)
	UpdateRecord(ctx context.Context, kind core.Kind, id string, rec core.Record) (core.Record, error)
	DeleteRecord(ctx context.Context, kind core.Kind, id string) error
	ListRecords(ctx context.Context, kind core.Kind, owner string) ([]core.Record, error)
}

// Client talks to the record store over HTTP. Every call runs under the
// configured timeout; a transport failure gets exactly one retry, a non-2xx
// response none.
type Client struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
	logger  *log.Logger
}

// NewClient builds a store client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentReconcile),
	}
}

// CreateRecord submits a new record. A 2xx response with a decodable body
// yields the server's copy; an empty body echoes the submitted record back.
func (c *Client) CreateRecord(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	body, err := c.do(ctx, http.MethodPost, c.baseURL+kind.APIPath(), rec, "add", kind)
	if err != nil {
		return core.Record{}, err
	}
	return decodeOrEcho(body, rec), nil
}

// UpdateRecord replaces an existing record by server id.
func (c *Client) UpdateRecord(ctx context.Context, kind core.Kind, id string, rec core.Record) (core.Record, error) {
	body, err := c.do(ctx, http.MethodPut, c.baseURL+kind.APIPath()+"/"+url.PathEscape(id), rec, "update", kind)
	if err != nil {
		return core.Record{}, err
	}
	return decodeOrEcho(body, rec), nil
}

// DeleteRecord removes a record by server id.
func (c *Client) DeleteRecord(ctx context.Context, kind core.Kind, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.baseURL+kind.APIPath()+"/"+url.PathEscape(id), nil, "delete", kind)
	return err
}

// ListRecords fetches an owner's records of one kind, newest first.
func (c *Client) ListRecords(ctx context.Context, kind core.Kind, owner string) ([]core.Record, error) {
	u := c.baseURL + kind.APIPath() + "?user_id=" + url.QueryEscape(owner)
	body, err := c.do(ctx, http.MethodGet, u, nil, "load", kind)
	if err != nil {
		return nil, err
	}

	var records []core.Record
	if len(body) > 0 {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, &core.StoreError{Message: "unreadable " + string(kind) + " listing", Err: err}
		}
	}
	return records, nil
}

// do runs one store call: marshal, send under timeout, retry once on
// transport error, map non-2xx to StoreError. Returns the response body.
func (c *Client) do(ctx context.Context, method, u string, payload any, verb string, kind core.Kind) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s record: %w", kind, err)
		}
	}

	body, err := c.attempt(ctx, method, u, encoded)
	if err == nil {
		return body, nil
	}

	var se *core.StoreError
	if errors.As(err, &se) && se.StatusCode == 0 {
		// One retry, transport failures only. The store rejected nothing;
		// the request may simply not have arrived.
		c.logger.Warn("Store call failed, retrying once",
			log.FieldOperation, verb, log.FieldKind, kind, log.FieldError, err)
		body, retryErr := c.attempt(ctx, method, u, encoded)
		if retryErr == nil {
			return body, nil
		}
		err = retryErr
	}
	return nil, fallbackError(err, verb, kind)
}

func (c *Client) attempt(ctx context.Context, method, u string, encoded []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if encoded != nil {
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &core.StoreError{Message: "record store unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &core.StoreError{Message: "record store response unreadable", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.StoreError{
			StatusCode: resp.StatusCode,
			Message:    storeMessage(body),
		}
	}
	return body, nil
}

// storeMessage pulls the {"message": ...} text out of an error body, empty
// when the store gave none.
func storeMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Message)
}

// fallbackError fills in the generic per-operation message on store errors
// that carry none, e.g. "failed to add budget".
func fallbackError(err error, verb string, kind core.Kind) error {
	var se *core.StoreError
	if errors.As(err, &se) && se.Message == "" {
		se.Message = fmt.Sprintf("failed to %s %s", verb, kind)
	}
	return err
}

// decodeOrEcho parses the store's record body, falling back to the record
// sent when the body is empty or not a record.
func decodeOrEcho(body []byte, sent core.Record) core.Record {
	if len(body) == 0 {
		return sent
	}
	var rec core.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return sent
	}
	return rec
}
