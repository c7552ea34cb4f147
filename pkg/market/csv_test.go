package market

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []float64
		wantErr bool
	}{
		{
			name:  "Date and close",
			input: "date,close\n2024-01-01,10.5\n2024-01-02,11\n",
			want:  []float64{10.5, 11},
		},
		{
			name:  "Adj close preferred",
			input: "Date,Open,Close,Adj Close\n2024-01-01,1,10,9.5\n",
			want:  []float64{9.5},
		},
		{
			name:  "Missing cells",
			input: "date,close\n2024-01-01,\n2024-01-02,null\n2024-01-03,7\n",
			want:  []float64{math.NaN(), math.NaN(), 7},
		},
		{
			name:    "No close column",
			input:   "date,open\n2024-01-01,1\n",
			wantErr: true,
		},
		{
			name:    "Bad date",
			input:   "date,close\n01/02/2024,1\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, err := ParseCSV(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseCSV() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCSV() error = %v", err)
			}
			if len(points) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(points), len(tt.want))
			}
			for i, w := range tt.want {
				got := points[i].Price
				if math.IsNaN(w) {
					if !math.IsNaN(got) {
						t.Errorf("points[%d] = %v, want missing", i, got)
					}
					continue
				}
				if got != w {
					t.Errorf("points[%d] = %v, want %v", i, got, w)
				}
			}
		})
	}
}

func TestWriteCSV_ReadBack(t *testing.T) {
	points := []Point{
		{Time: day("2024-01-01"), Price: 1.25},
		MissingPoint(day("2024-01-02")),
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, points); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	parsed, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(parsed) != 2 || parsed[0].Price != 1.25 || !parsed[1].Missing() {
		t.Errorf("read back %v, want %v", parsed, points)
	}
}

func TestCSVSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	content := "date,close\n2023-12-29,1\n2024-01-02,2\n2024-01-03,3\n2024-01-04,4\n"
	if err := os.WriteFile(filepath.Join(dir, "GLD.csv"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	src := NewCSVSource(dir)
	series, err := src.Fetch(context.Background(), "GLD", day("2024-01-01"), day("2024-01-03"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if series.Len() != 2 {
		t.Errorf("Len() = %d, want 2", series.Len())
	}

	_, err = src.Fetch(context.Background(), "SIL", day("2024-01-01"), day("2024-01-03"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file error = %v, want ErrNotFound", err)
	}

	_, err = src.Fetch(context.Background(), "GLD", day("2025-01-01"), day("2025-02-01"))
	if !errors.Is(err, ErrEmptySeries) {
		t.Errorf("empty window error = %v, want ErrEmptySeries", err)
	}
}
