package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const chartFixture = `{"chart":{"result":[{
  "timestamp":[1704205800,1704292200,1704378600],
  "indicators":{
    "quote":[{"close":[190.1,null,192.3]}],
    "adjclose":[{"adjclose":[189.5,null,191.7]}]
  }}],"error":null}}`

func TestYahooSource_Fetch(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Query().Get("interval") != "1d" {
			t.Errorf("interval = %q, want 1d", r.URL.Query().Get("interval"))
		}
		if !strings.Contains(r.Header.Get("User-Agent"), "Mozilla") {
			t.Errorf("missing browser user agent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chartFixture))
	}))
	defer server.Close()

	src := NewYahooSource(server.URL)
	series, err := src.Fetch(context.Background(), "GLD", day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotPath != "/v8/finance/chart/GLD" {
		t.Errorf("path = %s", gotPath)
	}
	if series.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", series.Len())
	}

	points := series.Points()
	if points[0].Price != 189.5 {
		t.Errorf("first close = %v, want adjusted 189.5", points[0].Price)
	}
	if !points[1].Missing() {
		t.Error("null close should be a missing point")
	}
	if !points[0].Time.Equal(day("2024-01-02")) {
		t.Errorf("first date = %v, want 2024-01-02", points[0].Time)
	}
}

func TestYahooSource_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer server.Close()

	_, err := NewYahooSource(server.URL).Fetch(context.Background(), "NOPE", day("2024-01-01"), day("2024-01-31"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch() error = %v, want ErrNotFound", err)
	}
}

func TestYahooSource_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewYahooSource(server.URL).Fetch(context.Background(), "GLD", day("2024-01-01"), day("2024-01-31"))
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("Fetch() error = %v, want status 500", err)
	}
}
