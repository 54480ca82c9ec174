package sampler

import (
	"context"
	"time"

	logger "github.com/d2r2/go-logger"

	"airsense-go/bus"
)

var lg = logger.NewPackageLogger("sampler", logger.InfoLevel)

// Bus topics the service produces.
const (
	TopicReadings = "readings" // readings/<id>: Sample
	TopicDevices  = "devices"  // devices/<id>/info: retained Info
	TopicStatus   = "status"   // status/<id>: error string
)

// Config holds the service options.
type Config struct {
	// Period is the time between measurement rounds.
	Period time.Duration
	Worker WorkerConfig
}

// Service drives a set of adaptors on a shared period and publishes their
// samples on the bus.
type Service struct {
	cfg      Config
	conn     *bus.Connection
	worker   *Worker
	sink     chan Result
	adaptors []Adaptor
}

// NewService creates the sampling service on the given bus.
func NewService(b *bus.Bus, cfg Config) *Service {
	if cfg.Period <= 0 {
		cfg.Period = 10 * time.Second
	}
	sink := make(chan Result, 32)
	return &Service{
		cfg:    cfg,
		conn:   b.NewConnection("sampler"),
		worker: NewWorker(cfg.Worker, sink),
		sink:   sink,
	}
}

// Register adds an adaptor to the fleet. Call before Run.
func (s *Service) Register(a Adaptor) {
	s.adaptors = append(s.adaptors, a)
}

// Run publishes each device's retained identity document, then samples the
// fleet every Period until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.worker.Start(ctx)
	s.announce(ctx)
	go s.pump(ctx)

	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()
	s.round()
	for {
		select {
		case <-ctx.Done():
			s.conn.Disconnect()
			return
		case <-ticker.C:
			s.round()
		}
	}
}

// announce publishes a retained devices/<id>/info document per adaptor, so
// sinks that connect later still learn what hardware is on the bus.
func (s *Service) announce(ctx context.Context) {
	for _, a := range s.adaptors {
		info, err := a.Identity(ctx)
		if err != nil {
			lg.Warnf("%s: identity read failed: %v", a.ID(), err)
			continue
		}
		s.conn.Publish(s.conn.NewMessage(bus.Topic{TopicDevices, a.ID(), "info"}, info, true))
	}
}

func (s *Service) round() {
	for _, a := range s.adaptors {
		if !s.worker.Submit(Request{ID: a.ID(), Adaptor: a}) {
			lg.Warnf("%s: measurement queue full, skipping round", a.ID())
		}
	}
}

// pump moves worker results onto the bus.
func (s *Service) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.sink:
			if r.Err != nil {
				lg.Warnf("%s: measurement failed: %v", r.ID, r.Err)
				s.conn.Publish(s.conn.NewMessage(bus.Topic{TopicStatus, r.ID}, r.Err.Error(), false))
				continue
			}
			s.conn.Publish(s.conn.NewMessage(bus.Topic{TopicReadings, r.ID}, r.Sample, false))
		}
	}
}
