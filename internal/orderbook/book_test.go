package orderbook

import "testing"

func TestRebuildAroundInvariants(t *testing.T) {
	b := New()
	b.RebuildAround(100.0, 50000, 0.02, 1000)

	if len(b.Bids) != Levels || len(b.Asks) != Levels {
		t.Fatalf("expected %d levels per side, got bids=%d asks=%d", Levels, len(b.Bids), len(b.Asks))
	}
	for i, lvl := range b.Bids {
		if lvl.Price >= 100.0 {
			t.Fatalf("bid level %d not strictly below mid: %v", i, lvl.Price)
		}
		if i > 0 && lvl.Price >= b.Bids[i-1].Price {
			t.Fatalf("bid levels not monotone decreasing at %d", i)
		}
	}
	for i, lvl := range b.Asks {
		if lvl.Price <= 100.0 {
			t.Fatalf("ask level %d not strictly above mid: %v", i, lvl.Price)
		}
		if i > 0 && lvl.Price <= b.Asks[i-1].Price {
			t.Fatalf("ask levels not monotone increasing at %d", i)
		}
	}
	if b.LastUpdateTime != 1000 {
		t.Fatalf("expected LastUpdateTime 1000, got %d", b.LastUpdateTime)
	}
}

func TestRebuildAroundZeroLiquidity(t *testing.T) {
	b := New()
	b.RebuildAround(50.0, 0, 0.01, 1)
	for _, lvl := range b.Bids {
		if lvl.Quantity != 0 {
			t.Fatalf("expected zero quantity levels, got %v", lvl.Quantity)
		}
	}
}
