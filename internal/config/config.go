// Package config loads process configuration from the environment,
// following the teacher's accumulate-missing-then-report pattern.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr          string
	WebSocketOrigin   string
	ProfectMode       string
	DefaultPopulation int
	PoolScanInterval  time.Duration
	TradePoolSize     int
	PositionPoolSize  int
	WorkerPoolSize    int
}

func Load() (Config, error) {
	var c Config
	var missing []string

	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}

	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}

	c.ProfectMode = strings.ToLower(strings.TrimSpace(os.Getenv("PROFECT_MODE")))
	if c.ProfectMode == "" {
		c.ProfectMode = "development"
	}
	if c.ProfectMode != "development" && c.ProfectMode != "production" {
		return c, errors.New("invalid PROFECT_MODE: use development or production")
	}

	c.DefaultPopulation = 118
	if raw := os.Getenv("TRADER_POPULATION"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c, errors.New("invalid TRADER_POPULATION")
		}
		c.DefaultPopulation = n
	}

	c.PoolScanInterval = 10 * time.Second
	if raw := os.Getenv("POOL_SCAN_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c, err
		}
		c.PoolScanInterval = d
	}

	c.TradePoolSize = 2000
	if raw := os.Getenv("TRADE_POOL_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c, errors.New("invalid TRADE_POOL_SIZE")
		}
		c.TradePoolSize = n
	}

	c.PositionPoolSize = 1000
	if raw := os.Getenv("POSITION_POOL_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c, errors.New("invalid POSITION_POOL_SIZE")
		}
		c.PositionPoolSize = n
	}

	c.WorkerPoolSize = 8
	if raw := os.Getenv("WORKER_POOL_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c, errors.New("invalid WORKER_POOL_SIZE")
		}
		c.WorkerPoolSize = n
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + join(missing))
	}
	return c, nil
}

func join(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for i := 1; i < len(items); i++ {
		out += "," + items[i]
	}
	return out
}
