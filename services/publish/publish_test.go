package publish

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"airsense-go/bus"
	"airsense-go/services/sampler"
)

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (fakeToken) Error() error { return nil }

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []published
}

func (c *fakeClient) Connect() mqtt.Token { return fakeToken{} }
func (c *fakeClient) Disconnect(uint)     {}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, payload: payload.([]byte), retained: retained})
	return fakeToken{}
}

func (c *fakeClient) snapshot() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

func TestForwardsReadingsAndRetainedInfo(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(16)
	svc := NewService(b, Config{BrokerURL: "tcp://localhost:1883", TopicPrefix: "airsense"})
	fc := &fakeClient{}
	svc.mq = fc
	go svc.Run(ctx)
	time.Sleep(10 * time.Millisecond) // let subscriptions land

	conn := b.NewConnection("test")
	conn.Publish(conn.NewMessage(bus.Topic{sampler.TopicReadings, "s8"}, sampler.Sample{
		{Kind: "co2", Value: 612, Unit: "ppm", TsMs: 42},
	}, false))
	conn.Publish(conn.NewMessage(bus.Topic{sampler.TopicDevices, "s8", "info"},
		sampler.Info{"model": "senseair-s8"}, true))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		msgs := fc.snapshot()
		if len(msgs) == 2 {
			byTopic := map[string]published{}
			for _, m := range msgs {
				byTopic[m.topic] = m
			}
			r, ok := byTopic["airsense/readings/s8"]
			if !ok || r.retained {
				t.Fatalf("readings message wrong: %+v", msgs)
			}
			var sample sampler.Sample
			if err := json.Unmarshal(r.payload, &sample); err != nil {
				t.Fatal(err)
			}
			if len(sample) != 1 || sample[0].Kind != "co2" || sample[0].Value != 612 {
				t.Fatalf("sample = %+v", sample)
			}
			info, ok := byTopic["airsense/devices/s8/info"]
			if !ok || !info.retained {
				t.Fatalf("info message wrong: %+v", msgs)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected 2 published messages, got %+v", fc.snapshot())
}
