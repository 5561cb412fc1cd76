package pool

import "testing"

type widget struct {
	val int
}

func (w *widget) Reset() { w.val = 0 }

func newWidgetPool(max, prefill int) *Pool[*widget] {
	return New[*widget]("widget", max, prefill, func() *widget { return &widget{} })
}

func TestAcquireReuse(t *testing.T) {
	p := newWidgetPool(4, 2)
	a := p.Acquire()
	a.val = 7
	p.Release(a)
	b := p.Acquire()
	if b.val != 0 {
		t.Fatalf("expected reset object, got val=%d", b.val)
	}
	stats := p.Stats()
	if stats.Reused == 0 {
		t.Fatalf("expected at least one reuse, got %+v", stats)
	}
}

func TestAcquireAtCapacityEmergencyAllocation(t *testing.T) {
	p := newWidgetPool(4, 0)
	held := make([]*widget, 0, 5)
	for i := 0; i < 4; i++ {
		held = append(held, p.Acquire())
	}
	// Pool is now fully held with nothing released; the next acquire forces
	// cleanup of the oldest ~10% (at least 1) and, with the ceiling still
	// reached, is served by an emergency allocation.
	for i := 0; i < 10; i++ {
		p.Acquire()
	}
	stats := p.Stats()
	if stats.Emergency == 0 {
		t.Fatalf("expected emergency allocations once pool stayed fully held, got %+v", stats)
	}
	health := p.HealthCheck()
	if health.Healthy {
		t.Fatalf("expected unhealthy pool at full utilization, got %+v", health)
	}
}

func TestReleaseEfficiencyHealth(t *testing.T) {
	p := newWidgetPool(10, 0)
	objs := make([]*widget, 0, 10)
	for i := 0; i < 10; i++ {
		objs = append(objs, p.Acquire())
	}
	// Only release 5 of 10 -> efficiency 0.5 < 0.8 threshold.
	for i := 0; i < 5; i++ {
		p.Release(objs[i])
	}
	h := p.HealthCheck()
	if h.Healthy {
		t.Fatalf("expected unhealthy pool due to low release efficiency, got %+v", h)
	}
}

func TestResizeDiscardsExcess(t *testing.T) {
	p := newWidgetPool(10, 10)
	p.Resize(4)
	stats := p.Stats()
	if stats.MaxSize != 4 {
		t.Fatalf("expected maxSize 4, got %d", stats.MaxSize)
	}
	if stats.Created > 4 {
		t.Fatalf("expected created <= 4 after resize, got %d", stats.Created)
	}
}

func TestMonitorSnapshotClassification(t *testing.T) {
	m := NewMonitor()
	p := newWidgetPool(10, 0)
	for i := 0; i < 9; i++ {
		p.Acquire()
	}
	m.Register(p)
	rep := m.Snapshot()
	if rep.TotalPools != 1 {
		t.Fatalf("expected 1 pool, got %d", rep.TotalPools)
	}
	if rep.WarningPools != 1 && rep.CriticalPools != 1 {
		t.Fatalf("expected pool flagged warning or critical at 90%% usage, got %+v", rep)
	}
}
