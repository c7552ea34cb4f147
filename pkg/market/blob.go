package market

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"
)

// BlobReader is the object-store read side used by BlobSource
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// BlobSource reads the CSV format of CSVSource from <prefix>/<SYMBOL>.csv objects
type BlobSource struct {
	reader BlobReader
	prefix string
}

// NewBlobSource creates an object-store backed source
func NewBlobSource(reader BlobReader, prefix string) *BlobSource {
	return &BlobSource{reader: reader, prefix: prefix}
}

// Name implements Source
func (s *BlobSource) Name() string {
	return "s3"
}

// Fetch implements Source
func (s *BlobSource) Fetch(ctx context.Context, symbol string, start, end time.Time) (*PriceSeries, error) {
	key := path.Join(s.prefix, symbol+".csv")

	body, err := s.reader.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", key, err)
	}
	defer body.Close()

	points, err := ParseCSV(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	log.Printf("[DataSource] Loaded %d rows from object %s", len(points), key)

	series, err := finish(symbol, points, start, end)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", symbol, err)
	}
	return series, nil
}
