package broadcast

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type fakeClient struct {
	id       string
	received [][]byte
	fail     bool
}

func (f *fakeClient) ID() string { return f.id }
func (f *fakeClient) Send(payload []byte) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.received = append(f.received, payload)
	return nil
}

func TestImmediateDeliveryDispatchesPerEvent(t *testing.T) {
	h := New()
	c := &fakeClient{id: "c1"}
	h.AddClient("sim-1", c)
	h.QueueUpdate("sim-1", Event{Type: "trade", Timestamp: 1, Data: map[string]interface{}{"x": 1}})
	if len(c.received) != 1 {
		t.Fatalf("expected immediate delivery, got %d messages", len(c.received))
	}
}

func TestBatchedDeliveryCollapsesIdempotentTypes(t *testing.T) {
	h := New()
	c := &fakeClient{id: "c1"}
	h.AddClient("sim-1", c)
	h.QueueUpdate("sim-1", Event{Type: "order_book", Timestamp: 1, Data: map[string]interface{}{"v": 1}})
	h.QueueUpdate("sim-1", Event{Type: "order_book", Timestamp: 2, Data: map[string]interface{}{"v": 2}})
	h.flushOne("sim-1")

	if len(c.received) != 1 {
		t.Fatalf("expected one batch envelope, got %d", len(c.received))
	}
	var env map[string]interface{}
	if err := json.Unmarshal(c.received[0], &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	event := env["event"].(map[string]interface{})
	if event["type"] != "batch_update" {
		t.Fatalf("expected batch_update type, got %v", event["type"])
	}
	data := event["data"].(map[string]interface{})
	updates := data["updates"].(map[string]interface{})
	if _, hasType := updates["type"]; hasType {
		t.Fatalf("updates must not contain a type key")
	}
	ob := updates["order_book"].(map[string]interface{})
	if ob["v"].(float64) != 2 {
		t.Fatalf("expected only most recent order_book retained, got %v", ob["v"])
	}
}

func TestBatchedDeliveryRetainsAllAdditiveTypes(t *testing.T) {
	h := New()
	c := &fakeClient{id: "c1"}
	h.AddClient("sim-1", c)
	h.QueueUpdate("sim-1", Event{Type: "position_open", Timestamp: 1, Data: map[string]interface{}{"n": 1}})
	h.QueueUpdate("sim-1", Event{Type: "position_open", Timestamp: 2, Data: map[string]interface{}{"n": 2}})
	h.flushOne("sim-1")

	var env map[string]interface{}
	json.Unmarshal(c.received[0], &env)
	updates := env["event"].(map[string]interface{})["data"].(map[string]interface{})["updates"].(map[string]interface{})
	list := updates["position_open"].([]interface{})
	if len(list) != 2 {
		t.Fatalf("expected both additive entries retained, got %d", len(list))
	}
}

func TestRejectsGzipMagicBytePayload(t *testing.T) {
	if !rejectPayload([]byte{0x1F, 0x8B}) {
		t.Fatalf("expected gzip-magic-byte payload to be rejected")
	}
}

func TestRemoveClientOnSendFailure(t *testing.T) {
	h := New()
	c := &fakeClient{id: "c1", fail: true}
	h.AddClient("sim-1", c)
	h.QueueUpdate("sim-1", Event{Type: "trade", Timestamp: 1, Data: map[string]interface{}{}})
	if h.HealthCheck().Clients != 0 {
		t.Fatalf("expected client removed after send failure")
	}
	if h.ConnectionErrors() != 1 {
		t.Fatalf("expected connection error counted")
	}
}

func TestAddClientReplacesStaleSubscription(t *testing.T) {
	h := New()
	c := &fakeClient{id: "c1"}
	h.AddClient("sim-1", c)
	h.AddClient("sim-2", c)
	health := h.HealthCheck()
	if health.Clients != 1 {
		t.Fatalf("expected client tracked once, got %d", health.Clients)
	}
	if health.Simulations != 1 {
		t.Fatalf("expected only latest simulation subscription retained, got %d", health.Simulations)
	}
}

func TestSanitizeReplacesNonSerializable(t *testing.T) {
	data := map[string]interface{}{
		"fn": func() {},
		"ok": 1,
	}
	out := Sanitize(data)
	if out["fn"] != "[Non-serializable]" {
		t.Fatalf("expected function replaced, got %v", out["fn"])
	}
	if out["ok"] != 1 {
		t.Fatalf("expected plain value preserved, got %v", out["ok"])
	}
}

func TestStartAndShutdownFlushesOnTicker(t *testing.T) {
	h := New()
	c := &fakeClient{id: "c1"}
	h.AddClient("sim-1", c)
	h.Start()
	h.QueueUpdate("sim-1", Event{Type: "order_book", Timestamp: 1, Data: map[string]interface{}{}})
	time.Sleep(3 * BatchFlushInterval)
	h.Shutdown()
	if len(c.received) == 0 {
		t.Fatalf("expected background flusher to deliver batch")
	}
}
