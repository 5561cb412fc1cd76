package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PROFECT_MODE", "")
	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.HTTPAddr != ":8080" {
		t.Fatalf("expected default HTTP addr, got %q", c.HTTPAddr)
	}
	if c.ProfectMode != "development" {
		t.Fatalf("expected development mode default, got %q", c.ProfectMode)
	}
	if c.TradePoolSize != 2000 || c.PositionPoolSize != 1000 {
		t.Fatalf("expected default pool sizes, got trade=%d position=%d", c.TradePoolSize, c.PositionPoolSize)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	t.Setenv("PROFECT_MODE", "bogus")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid PROFECT_MODE")
	}
}

func TestLoadRejectsInvalidPoolSize(t *testing.T) {
	t.Setenv("TRADE_POOL_SIZE", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid TRADE_POOL_SIZE")
	}
}
