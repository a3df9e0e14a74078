// Package httpx is the background broker's outbound HTTP path. Every
// request the assistant makes — chat, folders, roles, document downloads —
// goes through the Broker so the user's session cookies travel with it. No
// other package performs outbound HTTP.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/config"
)

// Request describes one outbound HTTP call.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// Response is the uniform result shape. Data holds parsed JSON when the
// body is parseable and the raw text otherwise; failures carry the HTTP
// status and body in Err.
type Response struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Data   any    `json:"data,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Broker performs authenticated outbound HTTP on behalf of the UI and the
// content agents, attaching the browser's ambient cookies for the target
// origin.
type Broker struct {
	cfg     *config.Config
	cookies browser.CookieStore
	client  *http.Client
	retry   RetryConfig
	logger  *log.Logger
}

// NewBroker builds the broker. A nil client gets a 60 s-timeout default.
func NewBroker(cfg *config.Config, cookies browser.CookieStore, client *http.Client, logger *log.Logger) *Broker {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	retry := DefaultRetryConfig()
	if cfg.RetryBaseDelay > 0 {
		retry.BaseDelay = cfg.RetryBaseDelay
	}
	return &Broker{
		cfg:     cfg,
		cookies: cookies,
		client:  client,
		retry:   retry,
		logger:  logger.With("component", "httpx"),
	}
}

// Request performs a single call with no retries.
func (b *Broker) Request(ctx context.Context, req Request) Response {
	resp, err := b.do(ctx, req)
	if err != nil {
		if statusErr, ok := err.(*StatusError); ok {
			return Response{OK: false, Status: statusErr.Status, Err: statusErr.Error()}
		}
		return Response{OK: false, Err: err.Error()}
	}
	return resp
}

// RequestWithRetry performs a call under the bootstrap retry policy
// (3 attempts, 800 ms × 2ⁿ backoff on {401, 429, 500, 502, 503, 504}).
// Only the folders/roles bootstrap uses this entrypoint.
func (b *Broker) RequestWithRetry(ctx context.Context, req Request) Response {
	resp, err := ExecuteWithRetry(ctx, func(ctx context.Context, attempt int) (Response, error) {
		if attempt > 0 {
			b.logger.Debug("retrying request", "url", req.URL, "attempt", attempt)
		}
		return b.do(ctx, req)
	}, b.retry)
	if err != nil {
		if statusErr, ok := err.(*StatusError); ok {
			return Response{OK: false, Status: statusErr.Status, Err: statusErr.Error()}
		}
		return Response{OK: false, Err: err.Error()}
	}
	return resp
}

// Download fetches a binary document (SharePoint blob, Docs export) with
// ambient cookies and returns its bytes and content type.
func (b *Broker) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid download URL: %w", err)
	}
	b.attachCookies(ctx, httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &StatusError{Status: resp.StatusCode, Body: http.StatusText(resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read download body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (b *Broker) do(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	contentType := ""
	switch body := req.Body.(type) {
	case nil:
	case string:
		bodyReader = strings.NewReader(body)
	case []byte:
		bodyReader = bytes.NewReader(body)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return Response{}, fmt.Errorf("invalid request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	b.attachCookies(ctx, httpReq)

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return Response{}, &StatusError{Status: httpResp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return Response{OK: true, Status: httpResp.StatusCode, Data: parseBody(body)}, nil
}

// attachCookies adds the observed session cookies matching the request host.
func (b *Broker) attachCookies(ctx context.Context, req *http.Request) {
	cookies, err := b.cookies.List(ctx, b.cfg.CookieDomainSuffix(), b.cfg.SessionCookieName)
	if err != nil || len(cookies) == 0 {
		return
	}
	host := req.URL.Hostname()
	for _, c := range cookies {
		if cookieMatchesHost(c.Domain, host) {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
}

func cookieMatchesHost(domain, host string) bool {
	d := strings.TrimPrefix(domain, ".")
	return host == d || strings.HasSuffix(host, "."+d)
}

// parseBody returns decoded JSON when the body parses, the raw text
// otherwise.
func parseBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err == nil {
		return parsed
	}
	return string(body)
}

// TenantURL joins a tenant origin with a request path, guarding against
// malformed tenant labels.
func TenantURL(cfg *config.Config, tenant, path string) (string, error) {
	raw := cfg.TenantOrigin(tenant) + path
	if _, err := url.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid tenant URL %q: %w", raw, err)
	}
	return raw, nil
}
