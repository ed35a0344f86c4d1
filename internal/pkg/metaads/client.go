package metaads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/promohub/promohub-api/internal/pkg/errorhandler"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

type AdStatus string

const (
	StatusActive AdStatus = "ACTIVE"
	StatusPaused AdStatus = "PAUSED"
)

var (
	ErrEmptyToken   = errors.New("meta access token is empty")
	ErrInvalidAdID  = errors.New("meta ad id is empty")
	ErrInvalidState = errors.New("unsupported ad status")
)

// Insights is the lifetime performance of one ad.
type Insights struct {
	Spend  decimal.Decimal
	Clicks int64
}

// APIError is a non-2xx Graph API response.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("meta graph http error: status=%d code=%d type=%s message=%s", e.StatusCode, e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("meta graph http error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client talks to the Marketing API endpoints the guardrail needs.
type Client struct {
	baseURL string
	version string
	ua      string
	http    *http.Client
}

func NewClient(baseURL, version string, timeout time.Duration, ua string) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: strings.Trim(version, "/"),
		ua:      ua,
		http:    &http.Client{Timeout: timeout, Transport: transport},
	}
}

type insightsResponse struct {
	Data []struct {
		Spend  string `json:"spend"`
		Clicks string `json:"clicks"`
	} `json:"data"`
}

// GetAdInsights returns lifetime spend and clicks. An ad that has not
// delivered yet has no insight rows and reports zero.
func (c *Client) GetAdInsights(ctx context.Context, adID, token string) (Insights, error) {
	if err := validate(adID, token); err != nil {
		return Insights{}, err
	}

	q := url.Values{}
	q.Set("fields", "spend,clicks")
	q.Set("date_preset", "maximum")
	endpoint := c.endpoint(adID+"/insights") + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Insights{}, fmt.Errorf("meta insights request error: %w", err)
	}

	var out insightsResponse
	if err := c.do(req, token, &out); err != nil {
		return Insights{}, err
	}
	if len(out.Data) == 0 {
		return Insights{Spend: decimal.Zero}, nil
	}

	row := out.Data[0]
	spend := decimal.Zero
	if row.Spend != "" {
		spend, err = decimal.NewFromString(row.Spend)
		if err != nil {
			return Insights{}, fmt.Errorf("meta insights decode error: spend=%q: %w", row.Spend, err)
		}
	}
	var clicks int64
	if row.Clicks != "" {
		clicks, err = strconv.ParseInt(row.Clicks, 10, 64)
		if err != nil {
			return Insights{}, fmt.Errorf("meta insights decode error: clicks=%q: %w", row.Clicks, err)
		}
	}
	return Insights{Spend: spend, Clicks: clicks}, nil
}

// SetAdStatus switches delivery on or off at the platform.
func (c *Client) SetAdStatus(ctx context.Context, adID, token string, status AdStatus) error {
	if err := validate(adID, token); err != nil {
		return err
	}
	if status != StatusActive && status != StatusPaused {
		return ErrInvalidState
	}

	form := url.Values{}
	form.Set("status", string(status))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(adID), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("meta status request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(req, token, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("meta status update not acknowledged for ad %s", adID)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	if c.version == "" {
		return c.baseURL + "/" + path
	}
	return c.baseURL + "/" + c.version + "/" + path
}

func (c *Client) do(req *http.Request, token string, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyRequestError(req.Context(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp)
		errorhandler.LogExternalServiceError(req.Context(), "meta_graph", req.URL.Path, resp.StatusCode, apiErr, apiErr.Body)
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("meta graph decode error: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if readErr != nil {
		apiErr.Body = fmt.Sprintf("<failed to read body: %v>", readErr)
		return apiErr
	}
	apiErr.Body = string(body)

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func validate(adID, token string) error {
	if strings.TrimSpace(adID) == "" {
		return ErrInvalidAdID
	}
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}
	return nil
}

func classifyRequestError(ctx context.Context, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("meta graph timeout: %w", err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("meta graph network error: %w", err)
	}
	return fmt.Errorf("meta graph request error: %w", err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
