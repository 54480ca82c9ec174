package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"airsense-go/bus"
)

func TestServicePublishesReadingsAndIdentity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(16)
	conn := b.NewConnection("test")
	readings := conn.Subscribe(bus.Topic{TopicReadings, "bmp280"})

	svc := NewService(b, Config{Period: 20 * time.Millisecond})
	svc.Register(&fakeAdaptor{id: "bmp280", delay: time.Millisecond})
	go svc.Run(ctx)

	select {
	case msg := <-readings.Channel():
		sample, ok := msg.Payload.(Sample)
		if !ok || len(sample) == 0 {
			t.Fatalf("unexpected payload: %#v", msg.Payload)
		}
		if sample[0].Kind != "temperature" {
			t.Fatalf("kind = %q, want temperature", sample[0].Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for reading")
	}

	// Identity is retained: a sink connecting late still sees it.
	info := conn.Subscribe(bus.Topic{TopicDevices, "bmp280", "info"})
	select {
	case msg := <-info.Channel():
		doc, ok := msg.Payload.(Info)
		if !ok || doc["model"] != "fake" {
			t.Fatalf("unexpected info document: %#v", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for retained info")
	}
}

func TestServiceReportsFailuresOnStatusTopic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(16)
	conn := b.NewConnection("test")
	status := conn.Subscribe(bus.Topic{TopicStatus, "s8"})

	svc := NewService(b, Config{Period: 20 * time.Millisecond})
	svc.Register(&fakeAdaptor{id: "s8", failErr: errors.New("line dead")})
	go svc.Run(ctx)

	select {
	case msg := <-status.Channel():
		if s, ok := msg.Payload.(string); !ok || s != "line dead" {
			t.Fatalf("unexpected status payload: %#v", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status message")
	}
}
