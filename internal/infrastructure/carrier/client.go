package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domship "github.com/Zhima-Mochi/minishop-settlement/internal/domain/shipping"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

const peerCarrier = "carrier-rates"

var errNotFound = errors.New("carrier: not found")

// Client talks to the carrier rate and shipping profile services over HTTP.
type Client struct {
	base   string
	http   *http.Client
	tracer observability.Tracer
	calls  observability.Counter
	dur    observability.Histogram
}

func NewClient(baseURL string, hc *http.Client, tel observability.Observability) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   hc,
		tracer: tel.Tracer(),
		calls:  tel.Metrics().Counter(observability.MExternalRequests),
		dur:    tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

type quoteDTO struct {
	ServiceName   string `json:"service_name"`
	PriceMinor    int64  `json:"price_minor"`
	Currency      string `json:"currency"`
	EstimatedDays *int   `json:"estimated_days"`
}

type ratesResponse struct {
	Quotes []quoteDTO `json:"quotes"`
}

// GetRates returns the merchant's quotes for country. A merchant the carrier
// does not know yields no quotes.
func (c *Client) GetRates(ctx context.Context, merchantID, country string) ([]domship.Quote, error) {
	q := url.Values{"merchant_id": {merchantID}, "country": {strings.ToUpper(country)}}
	var resp ratesResponse
	err := c.getJSON(ctx, "rates", "/rates?"+q.Encode(), &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]domship.Quote, 0, len(resp.Quotes))
	for _, d := range resp.Quotes {
		out = append(out, domship.Quote{
			MerchantID:    merchantID,
			ServiceName:   d.ServiceName,
			PriceMinor:    d.PriceMinor,
			Currency:      strings.ToUpper(d.Currency),
			EstimatedDays: d.EstimatedDays,
		})
	}
	return out, nil
}

type profileDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Countries []string `json:"countries"`
}

func (d profileDTO) toDomain(merchantID string) *domship.Profile {
	return &domship.Profile{ID: d.ID, MerchantID: merchantID, Name: d.Name, Countries: d.Countries}
}

func (c *Client) ProductProfile(ctx context.Context, productID string) (*domship.Profile, error) {
	var d struct {
		profileDTO
		MerchantID string `json:"merchant_id"`
	}
	err := c.getJSON(ctx, "product_profile", "/products/"+url.PathEscape(productID)+"/shipping-profile", &d)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.toDomain(d.MerchantID), nil
}

func (c *Client) GetShippingProfile(ctx context.Context, merchantID string) (*domship.Profile, error) {
	var d profileDTO
	err := c.getJSON(ctx, "merchant_profile", "/merchants/"+url.PathEscape(merchantID)+"/shipping-profile", &d)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.toDomain(merchantID), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "HTTP GET "+endpoint,
		attribute.String("peer.service", peerCarrier),
		attribute.String("http.route", endpoint),
	)
	start := time.Now()
	defer func() {
		outcome := "success"
		switch {
		case err == nil, errors.Is(err, errNotFound):
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		default:
			outcome = "error"
		}
		if outcome != "success" {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		c.calls.Add(1, observability.L("peer", peerCarrier), observability.L("endpoint", endpoint), observability.L("outcome", outcome))
		c.dur.Observe(time.Since(start).Seconds(), observability.L("peer", peerCarrier), observability.L("endpoint", endpoint))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("carrier: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("carrier: %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("carrier: %s: decode: %w", endpoint, err)
	}
	return nil
}
