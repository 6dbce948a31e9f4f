package render

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

	contract "renderhub/internal/contracts/renderer/v0"
	"renderhub/internal/pkg/errors"
)

// maxBodyBytes bounds how much of a failed response is kept for logging.
const maxBodyBytes = 4 << 10

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeServiceFailure is a non-2xx reply.
	OutcomeServiceFailure
	// OutcomeTransportFailure covers dial, DNS, TLS and timeout errors.
	OutcomeTransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeServiceFailure:
		return "service_failure"
	case OutcomeTransportFailure:
		return "transport_failure"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the result of one renderer call. The client never retries.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       string
	Err        error
}

func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

// AsError converts a failed outcome into a RENDER_FAILED error, or returns
// nil on success.
func (o Outcome) AsError() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeServiceFailure:
		return errors.Newf(errors.CodeRenderFailed, "renderer returned %d", o.StatusCode).
			WithField("status", o.StatusCode).
			WithField("body", o.Body)
	default:
		if errors.IsCode(o.Err, errors.CodeMissingConfig) {
			return o.Err
		}
		return errors.WrapWithCode(o.Err, errors.CodeRenderFailed, "render.call", "renderer unreachable")
	}
}

// Client talks to the external renderer.
type Client interface {
	// Configured reports whether an endpoint is set.
	Configured() bool
	// Invoke requests a persistent thumbnail (GET, query parameters).
	Invoke(ctx context.Context, params Params) Outcome
	// Preview requests an item preview (POST, JSON body).
	Preview(ctx context.Context, body contract.PreviewBody) Outcome
}

type HTTPClient struct {
	endpoint  string
	accessKey string
	client    *http.Client
}

// NewHTTPClient builds a client for endpoint. An empty endpoint is allowed;
// Configured then reports false.
func NewHTTPClient(endpoint, accessKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		endpoint:  strings.TrimSpace(endpoint),
		accessKey: accessKey,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Configured() bool { return c.endpoint != "" }

func (c *HTTPClient) Invoke(ctx context.Context, params Params) Outcome {
	if !c.Configured() {
		return notConfigured()
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: err}
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: err}
	}
	return c.do(req)
}

func (c *HTTPClient) Preview(ctx context.Context, body contract.PreviewBody) Outcome {
	if !c.Configured() {
		return notConfigured()
	}

	b, err := json.Marshal(body)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) Outcome {
	req.Header.Set(contract.AccessKeyHeader, c.accessKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
		return Outcome{Kind: OutcomeServiceFailure, StatusCode: res.StatusCode, Body: string(b)}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, res.Body)
	return Outcome{Kind: OutcomeSuccess, StatusCode: res.StatusCode}
}

func notConfigured() Outcome {
	return Outcome{Kind: OutcomeTransportFailure, Err: errors.MissingConfig("RENDER_SERVER_URL")}
}
