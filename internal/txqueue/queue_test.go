package txqueue

import (
	"testing"
	"time"

	"tradingsim/internal/broadcast"
	"tradingsim/internal/simmodel"
)

type fakeSweepClient struct {
	id      string
	events  chan string
}

func (c *fakeSweepClient) ID() string { return c.id }
func (c *fakeSweepClient) Send(payload []byte) error {
	select {
	case c.events <- string(payload):
	default:
	}
	return nil
}

func TestFlushBatchProcessesValidTrades(t *testing.T) {
	q := New(4)
	for i := 0; i < 5; i++ {
		q.AddTrade(simmodel.Trade{ID: simmodel.NewTradeID(), TraderWallet: "w1", Price: 10, Quantity: 1}, "sim-1")
	}
	results := q.FlushBatch("sim-1")
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Processed {
			t.Fatalf("expected all valid trades processed, got %+v", r)
		}
	}
}

func TestFlushBatchRecordsDeadLetterOnInvalidTrade(t *testing.T) {
	q := New(4)
	q.AddTrade(simmodel.Trade{ID: "", TraderWallet: "w1", Price: 10, Quantity: 1}, "sim-1")
	results := q.FlushBatch("sim-1")
	if len(results) != 1 || results[0].Processed {
		t.Fatalf("expected invalid trade marked unprocessed, got %+v", results)
	}
	if len(q.DeadLetters()) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(q.DeadLetters()))
	}
}

func TestReadyToFlushOnBatchSize(t *testing.T) {
	q := New(4)
	for i := 0; i < FlushBatchSize; i++ {
		q.AddTrade(simmodel.Trade{ID: simmodel.NewTradeID(), TraderWallet: "w1", Price: 1, Quantity: 1}, "sim-1")
	}
	if !q.ReadyToFlush("sim-1") {
		t.Fatalf("expected ready to flush at batch size threshold")
	}
}

func TestReadyToFlushOnInterval(t *testing.T) {
	q := New(4)
	q.AddTrade(simmodel.Trade{ID: simmodel.NewTradeID(), TraderWallet: "w1", Price: 1, Quantity: 1}, "sim-1")
	time.Sleep(FlushInterval + 2*time.Millisecond)
	if !q.ReadyToFlush("sim-1") {
		t.Fatalf("expected ready to flush after interval elapsed")
	}
}

func TestGetQueueStatsDegradedThreshold(t *testing.T) {
	q := New(1)
	q.activeJobs = DegradedThreshold
	stats := q.GetQueueStats()
	if stats.Health != "degraded" {
		t.Fatalf("expected degraded health at threshold, got %s", stats.Health)
	}
}

func TestStartSweepsBufferAndSignalsProcessedTrade(t *testing.T) {
	hub := broadcast.New()
	hub.Start()
	defer hub.Shutdown()

	client := &fakeSweepClient{id: "c1", events: make(chan string, 8)}
	hub.AddClient("sim-1", client)

	q := New(4)
	q.SetHub(hub)
	q.Start()
	defer q.Shutdown()

	q.AddTrade(simmodel.Trade{ID: simmodel.NewTradeID(), TraderWallet: "w1", Price: 10, Quantity: 1}, "sim-1")

	select {
	case payload := <-client.events:
		if len(payload) == 0 {
			t.Fatalf("expected non-empty processed_trade payload")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected processed_trade event within 1s of background sweep")
	}
}

func TestGetProcessedTradesLimit(t *testing.T) {
	q := New(4)
	for i := 0; i < 10; i++ {
		q.AddTrade(simmodel.Trade{ID: simmodel.NewTradeID(), TraderWallet: "w1", Price: 1, Quantity: 1}, "sim-1")
	}
	q.FlushBatch("sim-1")
	limited := q.GetProcessedTrades("sim-1", 3)
	if len(limited) != 3 {
		t.Fatalf("expected 3 limited results, got %d", len(limited))
	}
}
