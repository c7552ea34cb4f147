package bus

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/wire"
)

// Responder 在 queue group 中处理 estimate 请求
// 请求：{"values": [...], "mu_tolerance": x}（可选，缺省为 ou.DefaultMuTolerance）；应答：{"params": {...}} 或 {"error": "..."}
type Responder struct {
	conn    *nats.Conn
	subject string
	queue   string
	sub     *nats.Subscription

	served atomic.Int64
	failed atomic.Int64
}

// NewResponder creates a responder on subject
func NewResponder(conn *nats.Conn, subject, queue string) *Responder {
	return &Responder{conn: conn, subject: subject, queue: queue}
}

// Start subscribes to the request subject
func (r *Responder) Start() error {
	sub, err := r.conn.QueueSubscribe(r.subject, r.queue, func(msg *nats.Msg) {
		reply := r.handle(msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			log.Printf("[Bus] Failed to respond on %s: %v", msg.Reply, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", r.subject, err)
	}
	r.sub = sub
	log.Printf("[Bus] Serving estimate requests on %s (queue %s)", r.subject, r.queue)
	return nil
}

// Stop drains the subscription
func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Drain()
}

// Stats returns the number of served and failed requests
func (r *Responder) Stats() (served, failed int64) {
	return r.served.Load(), r.failed.Load()
}

// handle 解码请求、估计参数并编码应答
// 任何失败都编码为 error 字段返回给请求方
func (r *Responder) handle(data []byte) []byte {
	params, err := r.estimate(data)
	if err != nil {
		r.failed.Add(1)
		log.Printf("[Bus] Estimate request failed: %v", err)
	} else {
		r.served.Add(1)
	}

	s, encErr := wire.EncodeEstimateReply(params, err)
	if encErr != nil {
		log.Printf("[Bus] Failed to encode reply: %v", encErr)
		return nil
	}
	out, encErr := wire.Marshal(s)
	if encErr != nil {
		log.Printf("[Bus] Failed to marshal reply: %v", encErr)
		return nil
	}
	return out
}

func (r *Responder) estimate(data []byte) (ou.Params, error) {
	s, err := wire.Unmarshal(data)
	if err != nil {
		return ou.Params{}, err
	}
	req, err := wire.DecodeEstimateRequest(s)
	if err != nil {
		return ou.Params{}, err
	}

	tol := ou.DefaultMuTolerance
	if req.MuTolerance != nil {
		tol = *req.MuTolerance
	}
	return ou.EstimateValues(req.Values, ou.WithMuTolerance(tol))
}
