package candle

import (
	"testing"
	"time"

	"tradingsim/internal/broadcast"
)

type fakeCandleClient struct {
	id     string
	events chan string
}

func (c *fakeCandleClient) ID() string { return c.id }
func (c *fakeCandleClient) Send(payload []byte) error {
	select {
	case c.events <- string(payload):
	default:
	}
	return nil
}

func TestSubmitRejectsInvalidPrice(t *testing.T) {
	c := NewCoordinator()
	if err := c.Submit("sim-1", 0, -5, 1); err == nil {
		t.Fatalf("expected error for negative price")
	}
	if err := c.Submit("sim-1", 0, 2e6, 1); err == nil {
		t.Fatalf("expected error for out-of-range price")
	}
}

func TestSubmitRejectsInvalidVolume(t *testing.T) {
	c := NewCoordinator()
	if err := c.Submit("sim-1", 0, 100, -1); err == nil {
		t.Fatalf("expected error for negative volume")
	}
}

func TestSubmitAndFlushAppliesSample(t *testing.T) {
	c := NewCoordinator()
	c.EnsureCleanStart("sim-1", 0, 100.0)
	if err := c.Submit("sim-1", 500, 110.0, 2.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.flush()
	candles := c.Candles("sim-1", 0)
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle after flush, got %d", len(candles))
	}
	if candles[0].Close != 110.0 {
		t.Fatalf("expected close 110, got %v", candles[0].Close)
	}
}

func TestConsecutiveFailuresDisableQueue(t *testing.T) {
	c := NewCoordinator()
	for i := 0; i < ConsecutiveFailureDisable; i++ {
		_ = c.Submit("sim-1", 0, -1, 1)
	}
	if err := c.Submit("sim-1", 0, 100, 1); err == nil {
		t.Fatalf("expected queue disabled after repeated invalid samples")
	}
}

func TestEnsureCleanStartResetsFailureCounters(t *testing.T) {
	c := NewCoordinator()
	for i := 0; i < ConsecutiveFailureDisable; i++ {
		_ = c.Submit("sim-1", 0, -1, 1)
	}
	c.EnsureCleanStart("sim-1", 0, 100.0)
	if err := c.Submit("sim-1", 0, 100, 1); err != nil {
		t.Fatalf("expected queue re-enabled after clean start, got %v", err)
	}
}

func TestFlushSignalsHubWithCandleUpdate(t *testing.T) {
	hub := broadcast.New()
	hub.Start()
	defer hub.Shutdown()

	client := &fakeCandleClient{id: "c1", events: make(chan string, 8)}
	hub.AddClient("sim-1", client)

	c := NewCoordinator()
	c.SetHub(hub)
	c.EnsureCleanStart("sim-1", 0, 100.0)
	if err := c.Submit("sim-1", 500, 110.0, 2.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.flush()

	select {
	case payload := <-client.events:
		if len(payload) == 0 {
			t.Fatalf("expected non-empty candle_update payload")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected candle_update event to reach the hub's batched flush within 1s")
	}
}

func TestStartAndShutdown(t *testing.T) {
	c := NewCoordinator()
	c.Start()
	c.EnsureCleanStart("sim-1", 0, 100.0)
	_ = c.Submit("sim-1", 500, 105.0, 1.0)
	time.Sleep(3 * FlushInterval)
	c.Shutdown()
	candles := c.Candles("sim-1", 0)
	if len(candles) != 1 {
		t.Fatalf("expected background flush to apply sample, got %d candles", len(candles))
	}
}
