/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventStateChange)

	bus.Publish(EventStateChange, Payload{"from": "sleeping", "to": "ready"})

	select {
	case payload := <-sub:
		if payload["to"] != "ready" {
			t.Errorf("payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestPublishSkipsOtherTypes(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventSafetyChange)

	bus.Publish(EventStateChange, Payload{"to": "ready"})

	select {
	case payload := <-sub:
		t.Fatalf("received %v for an unsubscribed type", payload)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventExposureTaken)

	// Fill the subscriber's buffer and keep publishing; Publish must drop
	// rather than stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(EventExposureTaken, Payload{"n": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	_ = sub
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventNightReport)
	bus.Unsubscribe(EventNightReport, sub)

	if _, ok := <-sub; ok {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestAllTypesCoversConstants(t *testing.T) {
	seen := make(map[EventType]bool)
	for _, et := range AllTypes() {
		if seen[et] {
			t.Errorf("duplicate event type %s", et)
		}
		seen[et] = true
	}
	if len(seen) != 10 {
		t.Errorf("AllTypes lists %d types, want 10", len(seen))
	}
}
