package bus

import (
	"context"
	"fmt"
	"log"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/wire"
)

// Conn is the publishing side of *nats.Conn
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher 把每个品种对的结果发布到 <prefix>.fit.<A>.<B>
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher creates a result publisher
func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: prefix}
}

// PublishResult encodes the result as a protobuf Struct and publishes it
func (p *Publisher) PublishResult(r *analysis.Result) error {
	s, err := wire.EncodeResult(r)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.Pair, err)
	}
	data, err := wire.Marshal(s)
	if err != nil {
		return err
	}

	subject := FitSubject(p.prefix, r.Pair.A, r.Pair.B)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	log.Printf("[Bus] Published %s (%d bytes)", subject, len(data))
	return nil
}

// Name implements analysis.Sink
func (p *Publisher) Name() string {
	return "nats"
}

// Consume implements analysis.Sink
func (p *Publisher) Consume(ctx context.Context, r *analysis.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.PublishResult(r)
}

var _ analysis.Sink = (*Publisher)(nil)
