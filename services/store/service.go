package store

import (
	"context"

	logger "github.com/d2r2/go-logger"

	"airsense-go/bus"
	"airsense-go/services/sampler"
)

var lg = logger.NewPackageLogger("store", logger.InfoLevel)

// Service subscribes the store to the bus: every readings/<device> sample
// becomes rows, every devices/<device>/info document an upsert.
type Service struct {
	store *Store
	conn  *bus.Connection
}

// NewService binds a store to the bus.
func NewService(b *bus.Bus, store *Store) *Service {
	return &Service{store: store, conn: b.NewConnection("store")}
}

// Run consumes bus traffic until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	readings := s.conn.Subscribe(bus.Topic{sampler.TopicReadings, bus.WildcardOne})
	infos := s.conn.Subscribe(bus.Topic{sampler.TopicDevices, bus.WildcardOne, "info"})
	defer s.conn.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-readings.Channel():
			device := msg.Topic[1]
			sample, ok := msg.Payload.(sampler.Sample)
			if !ok {
				lg.Warnf("%s: dropping non-sample payload %T", device, msg.Payload)
				continue
			}
			if err := s.store.InsertSample(device, sample); err != nil {
				lg.Errorf("%s: insert failed: %v", device, err)
			}
		case msg := <-infos.Channel():
			device := msg.Topic[1]
			info, ok := msg.Payload.(sampler.Info)
			if !ok {
				lg.Warnf("%s: dropping non-info payload %T", device, msg.Payload)
				continue
			}
			if err := s.store.UpsertDevice(device, info); err != nil {
				lg.Errorf("%s: device upsert failed: %v", device, err)
			}
		}
	}
}
