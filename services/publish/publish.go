// Package publish forwards bus traffic to an external MQTT broker: samples
// as JSON telemetry, identity documents as retained topics.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "github.com/d2r2/go-logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"airsense-go/bus"
	"airsense-go/services/sampler"
)

var lg = logger.NewPackageLogger("publish", logger.InfoLevel)

// Config holds the broker connection options.
type Config struct {
	// BrokerURL like "tcp://mqtt.example.net:1883".
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// TopicPrefix namespaces everything this node publishes.
	TopicPrefix string
	QoS         byte
}

// client is the slice of the paho client the service consumes.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// Service bridges the internal bus to the broker.
type Service struct {
	cfg  Config
	conn *bus.Connection
	mq   client
}

// NewService creates the publisher. Connect must succeed before Run is
// useful; paho reconnects on its own afterwards.
func NewService(b *bus.Bus, cfg Config) *Service {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("airsense-%d", time.Now().UnixNano())
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "airsense"
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		lg.Infof("connected to %s as %s", cfg.BrokerURL, cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		lg.Warnf("broker connection lost: %v", err)
	}
	return &Service{
		cfg:  cfg,
		conn: b.NewConnection("publish"),
		mq:   mqtt.NewClient(opts),
	}
}

// Connect dials the broker.
func (s *Service) Connect() error {
	if token := s.mq.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish: connect %s: %w", s.cfg.BrokerURL, token.Error())
	}
	return nil
}

// Run forwards bus traffic until ctx is cancelled, then disconnects.
func (s *Service) Run(ctx context.Context) {
	readings := s.conn.Subscribe(bus.Topic{sampler.TopicReadings, bus.WildcardOne})
	infos := s.conn.Subscribe(bus.Topic{sampler.TopicDevices, bus.WildcardOne, "info"})
	statuses := s.conn.Subscribe(bus.Topic{sampler.TopicStatus, bus.WildcardOne})
	defer s.conn.Disconnect()
	defer s.mq.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-readings.Channel():
			device := msg.Topic[1]
			s.forward(s.cfg.TopicPrefix+"/readings/"+device, msg.Payload, false)
		case msg := <-infos.Channel():
			device := msg.Topic[1]
			s.forward(s.cfg.TopicPrefix+"/devices/"+device+"/info", msg.Payload, true)
		case msg := <-statuses.Channel():
			// Covers per-sensor error strings and the node heartbeat;
			// the heartbeat arrives retained and stays retained upstream.
			s.forward(s.cfg.TopicPrefix+"/status/"+msg.Topic[1], msg.Payload, msg.Retained)
		}
	}
}

func (s *Service) forward(topic string, payload any, retained bool) {
	doc, err := json.Marshal(payload)
	if err != nil {
		lg.Errorf("%s: marshal failed: %v", topic, err)
		return
	}
	token := s.mq.Publish(topic, s.cfg.QoS, retained, doc)
	if token.Wait() && token.Error() != nil {
		lg.Warnf("%s: publish failed: %v", topic, token.Error())
	}
}
