package sse

import (
	"testing"

	"github.com/veripack/veripack-backend/internal/logger"
)

func TestHubPublishReachesSubscribers(t *testing.T) {
	hub := NewHub(logger.NewNop())
	client := hub.Subscribe("job_1")
	other := hub.Subscribe("job_2")
	defer hub.Unsubscribe(client)
	defer hub.Unsubscribe(other)

	hub.Publish("job_1", Message{Event: EventStatus, Data: "snapshot"})

	select {
	case msg := <-client.Outbound:
		if msg.Event != EventStatus || msg.Data != "snapshot" {
			t.Errorf("msg = %+v", msg)
		}
	default:
		t.Fatal("subscriber received nothing")
	}

	select {
	case msg := <-other.Outbound:
		t.Errorf("wrong job received %+v", msg)
	default:
	}
}

func TestHubPublishNeverBlocksOnFullBuffer(t *testing.T) {
	hub := NewHub(logger.NewNop())
	client := hub.Subscribe("job_1")
	defer hub.Unsubscribe(client)

	for i := 0; i < cap(client.Outbound)+5; i++ {
		hub.Publish("job_1", Message{Event: EventStatus})
	}
	if len(client.Outbound) != cap(client.Outbound) {
		t.Errorf("buffered = %d, want full buffer %d", len(client.Outbound), cap(client.Outbound))
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(logger.NewNop())
	client := hub.Subscribe("job_1")
	hub.Unsubscribe(client)

	hub.Publish("job_1", Message{Event: EventDone})
	if len(client.Outbound) != 0 {
		t.Error("unsubscribed client still receives messages")
	}
}
