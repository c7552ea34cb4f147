package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultYahooBaseURL is the public chart API host
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource downloads daily closes from the Yahoo Finance chart API
type YahooSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewYahooSource creates a chart API client; an empty baseURL uses the public host
func NewYahooSource(baseURL string) *YahooSource {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &YahooSource{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements Source
func (s *YahooSource) Name() string {
	return "yahoo"
}

// SetTimeout sets the per-request HTTP timeout
func (s *YahooSource) SetTimeout(d time.Duration) {
	if d > 0 {
		s.httpClient.Timeout = d
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// Fetch implements Source
func (s *YahooSource) Fetch(ctx context.Context, symbol string, start, end time.Time) (*PriceSeries, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	// period2 is exclusive upstream
	params.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")

	path := fmt.Sprintf("/v8/finance/chart/%s?%s", url.PathEscape(symbol), params.Encode())

	body, err := s.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("yahoo: get chart %s: %w", symbol, err)
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("yahoo: decode chart %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("yahoo: %s: %w", symbol, ErrNotFound)
		}
		return nil, fmt.Errorf("yahoo: %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: %s: %w", symbol, ErrNotFound)
	}

	points := resp.Chart.Result[0].points()
	log.Printf("[DataSource] Downloaded %d bars for %s", len(points), symbol)

	series, err := finish(symbol, points, start, end)
	if err != nil {
		return nil, fmt.Errorf("yahoo: %s: %w", symbol, err)
	}
	return series, nil
}

// points prefers adjusted closes; null values become missing points
func (r chartResult) points() []Point {
	var closes []*float64
	if len(r.Indicators.AdjClose) > 0 && len(r.Indicators.AdjClose[0].AdjClose) == len(r.Timestamp) {
		closes = r.Indicators.AdjClose[0].AdjClose
	} else if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}

	points := make([]Point, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		price := math.NaN()
		if i < len(closes) && closes[i] != nil {
			price = *closes[i]
		}
		points = append(points, Point{
			Time:  normalizeDate(time.Unix(ts, 0)),
			Price: price,
		})
	}
	return points
}

func (s *YahooSource) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// the chart API rejects requests without a browser-like agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ouanalyzer/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		// the API still returns a JSON error envelope for unknown symbols
		return body, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
