// Package appraisal looks up a single parcel's appraisal record from the
// jurisdiction that owns it and evaluates an asking price against it.
package appraisal

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/query"
)

// ErrNotFound is returned when the jurisdiction has no record for the id.
var ErrNotFound = eris.New("appraisal: property not found")

// ErrNoDetailTemplate is returned for jurisdictions without a detail lookup.
var ErrNoDetailTemplate = query.ErrNoDetailTemplate

// Property is one parcel's appraisal record. Fields the jurisdiction omits
// are left at their zero value.
type Property struct {
	JurisdictionID   string  `json:"jurisdiction_id"`
	PropertyID       string  `json:"property_id"`
	Address          string  `json:"address"`
	OwnerName        string  `json:"owner_name"`
	AppraisedValue   float64 `json:"appraised_value"`
	Subdivision      string  `json:"subdivision"`
	LegalDescription string  `json:"legal_description"`
}

// Client fetches property details.
type Client interface {
	Details(ctx context.Context, j model.Jurisdiction, propertyID string) (*Property, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		c.userAgent = ua
	}
}

// WithRateLimit caps lookups per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

type client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  "parcel-cli/1.0",
		limiter:    rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Details resolves the jurisdiction's detail template and returns the first
// matching record.
func (c *client) Details(ctx context.Context, j model.Jurisdiction, propertyID string) (*Property, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, eris.New("appraisal: property id is required")
	}
	u, err := query.DetailURL(j, propertyID)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "appraisal: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "appraisal: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "appraisal: GET %s", j.ID)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, eris.Wrapf(ErrNotFound, "%s/%s", j.ID, propertyID)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("appraisal: %s returned status %d", j.ID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "appraisal: read body")
	}
	return parseProperty(body, j.ID, propertyID)
}

func parseProperty(body []byte, jurisdictionID, propertyID string) (*Property, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.Errorf("appraisal: %s returned invalid JSON", jurisdictionID)
	}
	first := gjson.GetBytes(body, "resultsList.0")
	if !first.IsObject() {
		return nil, eris.Wrapf(ErrNotFound, "%s/%s", jurisdictionID, propertyID)
	}

	p := &Property{
		JurisdictionID:   jurisdictionID,
		PropertyID:       first.Get("propertyId").String(),
		Address:          first.Get("address").String(),
		OwnerName:        first.Get("ownerName").String(),
		AppraisedValue:   first.Get("appraisedValue").Float(),
		Subdivision:      first.Get("subdivision").String(),
		LegalDescription: first.Get("legalDescription").String(),
	}
	if p.PropertyID == "" {
		p.PropertyID = propertyID
	}
	return p, nil
}
