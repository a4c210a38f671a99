package events

import (
	"testing"
	"time"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := New()
	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()

	bus.Publish(Event{Kind: KindStatus, Address: "addrA"})

	for i, sub := range []*Subscription{sub1, sub2} {
		select {
		case evt := <-sub.Chan:
			if evt.Kind != KindStatus {
				t.Fatalf("subscriber %d got kind %v, want %v", i, evt.Kind, KindStatus)
			}
			if evt.ID == "" {
				t.Fatalf("subscriber %d got empty event ID", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestPublishNeverBlocksOnLaggingSubscriber(t *testing.T) {
	bus := New()
	sub := bus.Subscribe()

	// Fill the subscriber's buffer without draining it.
	for i := 0; i < subscriberBufferSize+10; i++ {
		bus.Publish(Event{Kind: KindHashProgress})
	}

	// If Publish blocked on a full subscriber, this test would hang and
	// the surrounding test binary's timeout would catch it.
	drained := 0
	for {
		select {
		case <-sub.Chan:
			drained++
		default:
			goto done
		}
	}
done:
	if drained != subscriberBufferSize {
		t.Fatalf("drained %d events, want exactly %d (buffer capacity)", drained, subscriberBufferSize)
	}
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	bus := New()
	sub := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", bus.SubscriberCount())
	}

	sub.Unsubscribe()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0 after unsubscribe", bus.SubscriberCount())
	}
}

func TestLaggingSubscriberDoesNotAffectOthers(t *testing.T) {
	bus := New()
	lagging := bus.Subscribe()
	healthy := bus.Subscribe()

	for i := 0; i < subscriberBufferSize+5; i++ {
		bus.Publish(Event{Kind: KindHashProgress})
	}

	// The healthy subscriber should still have received (and can drain)
	// a full buffer's worth of events, same as the lagging one.
	healthyCount := 0
	for {
		select {
		case <-healthy.Chan:
			healthyCount++
		default:
			goto doneHealthy
		}
	}
doneHealthy:
	if healthyCount != subscriberBufferSize {
		t.Fatalf("healthy subscriber drained %d, want %d", healthyCount, subscriberBufferSize)
	}

	_ = lagging
}
