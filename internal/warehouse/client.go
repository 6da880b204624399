// Package warehouse defines the contract the coordinator uses to pull rows
// from the remote analytical warehouse (GDELT event/mention/GKG tables),
// and a minimal HTTP-based implementation. The join/filter SQL templates
// and CAMEO/GCAM parsing are explicitly out of scope (spec §1) — this
// package only has to satisfy the shape the coordinator calls.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gdelt-article-cache/internal/articles"
)

// Client is the WarehouseClient contract consumed by the coordinator.
// Every call returns the rows fetched and the number of bytes the
// warehouse reports having scanned, for the UsageMeter.
type Client interface {
	FetchDay(ctx context.Context, country string, date time.Time, limit int) (rows []articles.ArticleRow, bytesScanned int64, err error)
	FetchRange(ctx context.Context, country string, lo, hi time.Time, limit int) (rows []articles.ArticleRow, bytesScanned int64, err error)
}

// HTTPClient is a minimal production Client: it POSTs a query envelope to
// a configured endpoint and parses a JSON array response. The actual
// warehouse's query templates and result schema are an external
// collaborator's concern (spec §1); net/http is used here, rather than a
// pack dependency, because no example in the retrieval corpus ships a
// GDELT/BigQuery client library — see DESIGN.md.
type HTTPClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewHTTPClient returns a Client posting to endpoint with a sane default
// timeout; pass a *http.Client to override (e.g. for connection pooling
// tuned to the warehouse's latency profile).
func NewHTTPClient(endpoint string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPClient{Endpoint: endpoint, HTTPClient: hc}
}

type queryEnvelope struct {
	CountryCode string `json:"country_code"`
	LoDateAdded int64  `json:"lo_date_added"`
	HiDateAdded int64  `json:"hi_date_added"`
	Limit       int    `json:"limit"`
}

type queryResponse struct {
	Rows         []articles.ArticleRow `json:"rows"`
	BytesScanned int64                 `json:"bytes_scanned"`
}

func (c *HTTPClient) FetchDay(ctx context.Context, country string, date time.Time, limit int) ([]articles.ArticleRow, int64, error) {
	lo := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	hi := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 0, date.Location())
	return c.FetchRange(ctx, country, lo, hi, limit)
}

func (c *HTTPClient) FetchRange(ctx context.Context, country string, lo, hi time.Time, limit int) ([]articles.ArticleRow, int64, error) {
	body, err := json.Marshal(queryEnvelope{
		CountryCode: country,
		LoDateAdded: encodeInt(lo),
		HiDateAdded: encodeInt(hi),
		Limit:       limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("warehouse: encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("warehouse: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("warehouse: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("warehouse: unexpected status %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("warehouse: decode response: %w", err)
	}
	return out.Rows, out.BytesScanned, nil
}

func encodeInt(t time.Time) int64 {
	return int64(t.Year())*1e10 +
		int64(t.Month())*1e8 +
		int64(t.Day())*1e6 +
		int64(t.Hour())*1e4 +
		int64(t.Minute())*1e2 +
		int64(t.Second())
}
