// Package heartbeat publishes a periodic liveness document on the bus so
// sinks can tell a quiet node from a dead one.
package heartbeat

import (
	"context"
	"time"

	logger "github.com/d2r2/go-logger"

	"airsense-go/bus"
)

var lg = logger.NewPackageLogger("heartbeat", logger.InfoLevel)

// TopicBeat carries the retained liveness document.
var TopicBeat = bus.Topic{"status", "node"}

// topicConfig accepts interval changes at runtime.
var topicConfig = bus.Topic{"config", "heartbeat"}

// Service beats on a fixed interval until its context is cancelled. The
// interval can be changed at runtime by publishing {"interval_s": n} on
// config/heartbeat.
type Service struct {
	conn     *bus.Connection
	interval time.Duration
	started  time.Time
}

func NewService(b *bus.Bus, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{
		conn:     b.NewConnection("heartbeat"),
		interval: interval,
		started:  time.Now(),
	}
}

func (s *Service) Run(ctx context.Context) {
	cfg := s.conn.Subscribe(topicConfig)
	defer s.conn.Disconnect()

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	s.beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.beat()
		case msg := <-cfg.Channel():
			m, ok := msg.Payload.(map[string]any)
			if !ok {
				continue
			}
			if iv, ok := m["interval_s"].(float64); ok && iv > 0 {
				tick.Reset(time.Duration(iv * float64(time.Second)))
				lg.Infof("interval set to %gs", iv)
			}
		}
	}
}

// beat publishes retained so a late subscriber sees the last one.
func (s *Service) beat() {
	s.conn.Publish(s.conn.NewMessage(TopicBeat, map[string]any{
		"uptime_s": int64(time.Since(s.started).Seconds()),
		"ts_ms":    time.Now().UnixMilli(),
	}, true))
}
