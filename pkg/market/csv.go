package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CSVSource reads daily closes from data_path/<SYMBOL>.csv
type CSVSource struct {
	dataPath string
}

// NewCSVSource creates a CSV file source rooted at dataPath
func NewCSVSource(dataPath string) *CSVSource {
	return &CSVSource{dataPath: dataPath}
}

// Name implements Source
func (s *CSVSource) Name() string {
	return "csv"
}

// Fetch implements Source
func (s *CSVSource) Fetch(ctx context.Context, symbol string, start, end time.Time) (*PriceSeries, error) {
	filePath := filepath.Join(s.dataPath, symbol+".csv")

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("csv %s: %w", filePath, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer file.Close()

	points, err := ParseCSV(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	log.Printf("[DataSource] Loaded %d rows from %s", len(points), filePath)

	series, err := finish(symbol, points, start, end)
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", symbol, err)
	}
	return series, nil
}

// ParseCSV parses a header + rows price file
// The header must contain a date column and a close column; "adj close" is
// preferred over "close" when both exist. Empty, "null" or "nan" cells are
// kept as missing points.
func ParseCSV(r io.Reader) ([]Point, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	dateCol, closeCol := -1, -1
	adjCol := -1
	for i, name := range header {
		switch normalizeColumn(name) {
		case "date", "timestamp", "time":
			dateCol = i
		case "close":
			closeCol = i
		case "adjclose":
			adjCol = i
		}
	}
	if adjCol >= 0 {
		closeCol = adjCol
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("invalid CSV format: need date and close columns, got %v", header)
	}

	points := make([]Point, 0, 512)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}
		if len(record) <= dateCol || len(record) <= closeCol {
			return nil, fmt.Errorf("row %d: expected at least %d fields, got %d", line, max(dateCol, closeCol)+1, len(record))
		}

		ts, err := parseDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q: %w", line, record[dateCol], err)
		}

		price, err := parsePrice(record[closeCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid close %q: %w", line, record[closeCol], err)
		}

		points = append(points, Point{Time: ts, Price: price})
	}

	return points, nil
}

// WriteCSV writes points in the format ParseCSV reads
func WriteCSV(w io.Writer, points []Point) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"date", "close"}); err != nil {
		return err
	}
	for _, p := range points {
		price := ""
		if !p.Missing() {
			price = strconv.FormatFloat(p.Price, 'f', -1, 64)
		}
		if err := writer.Write([]string{p.Time.Format(DateLayout), price}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "")
	return strings.ReplaceAll(name, "_", "")
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return normalizeDate(t), nil
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "nan", "na":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
