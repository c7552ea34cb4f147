// Package bus publishes analysis results and serves estimate requests over NATS
package bus

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Connect 连接 NATS，断线自动重连
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("ouanalyzer"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[Bus] Disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("[Bus] Reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// FitSubject returns <prefix>.fit.<A>.<B>
// 品种代码中的 '.'、'*'、'>' 和空白在 NATS subject 中有特殊含义，替换为 '_'
func FitSubject(prefix, a, b string) string {
	return fmt.Sprintf("%s.fit.%s.%s", prefix, token(a), token(b))
}

func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
