package skipapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/skip-hire/internal/offer"
)

// DefaultEndpoint lists skips for the fixed NR32 Lowestoft location.
const DefaultEndpoint = "https://app.wewantwaste.co.uk/api/skips/by-location?postcode=NR32&area=Lowestoft"

const (
	maxBodyBytes    = 4 << 20
	maxSnippetBytes = 512
	userAgent       = "skip-hire/1.0"
)

// Doer executes outbound requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Lister is the behaviour the pipeline needs from a skips source.
type Lister interface {
	ListSkips(ctx context.Context) ([]offer.Offer, error)
}

// HTTPClient fetches skip offers from the remote API.
type HTTPClient struct {
	endpoint string
	doer     Doer
}

// New returns a client for endpoint. An empty endpoint falls back to
// DefaultEndpoint.
func New(endpoint string, doer Doer) (*HTTPClient, error) {
	if doer == nil {
		return nil, errors.New("skipapi: doer is required")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPClient{endpoint: endpoint, doer: doer}, nil
}

// Endpoint returns the URL the client fetches from.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// ListSkips performs one GET against the endpoint and decodes the offers in
// the order the API returned them.
func (c *HTTPClient) ListSkips(ctx context.Context) ([]offer.Offer, error) {
	ctx, span := otel.Tracer("skipapi.Client").Start(ctx, "Client.ListSkips")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("skipapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, c.fail(span, &FetchError{Kind: Unreachable, Err: err})
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnippetBytes))
		var cause error
		if text := strings.TrimSpace(string(snippet)); text != "" {
			cause = errors.New(text)
		}
		return nil, c.fail(span, &FetchError{Kind: BadStatus, StatusCode: resp.StatusCode, Err: cause})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(span, &FetchError{Kind: Unreachable, Err: fmt.Errorf("read body: %w", err)})
	}
	offers, err := decodeOffers(body)
	if err != nil {
		return nil, c.fail(span, &FetchError{Kind: MalformedBody, Err: err})
	}
	span.SetAttributes(attribute.Int("skips.count", len(offers)))
	return offers, nil
}

func (c *HTTPClient) fail(span trace.Span, err *FetchError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Kind.String())
	return err
}

func decodeOffers(body []byte) ([]offer.Offer, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("expected a JSON array")
	}
	var offers []offer.Offer
	if err := json.Unmarshal(trimmed, &offers); err != nil {
		return nil, fmt.Errorf("decode offers: %w", err)
	}
	if offers == nil {
		offers = []offer.Offer{}
	}
	return offers, nil
}
