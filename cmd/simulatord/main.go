package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradingsim/internal/broadcast"
	"tradingsim/internal/candle"
	"tradingsim/internal/config"
	"tradingsim/internal/httpserver"
	"tradingsim/internal/pool"
	"tradingsim/internal/simengine"
	"tradingsim/internal/simmodel"
	"tradingsim/internal/txqueue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	tradePool := pool.New[*simmodel.Trade]("trade", cfg.TradePoolSize, 0, func() *simmodel.Trade { return &simmodel.Trade{} })
	positionPool := pool.New[*simmodel.Position]("position", cfg.PositionPoolSize, 0, func() *simmodel.Position { return &simmodel.Position{} })
	monitor := pool.NewMonitorWithInterval(cfg.PoolScanInterval)
	monitor.Register(tradePool)
	monitor.Register(positionPool)
	monitor.Start()

	hub := broadcast.New()
	hub.Start()

	candles := candle.NewCoordinator()
	candles.SetHub(hub)
	candles.Start()

	txq := txqueue.New(cfg.WorkerPoolSize)
	txq.SetHub(hub)
	txq.Start()

	registry := simengine.NewRegistry(simengine.Deps{
		Candles:      candles,
		Hub:          hub,
		TxQueue:      txq,
		TradePool:    tradePool,
		PositionPool: positionPool,
	})

	router := httpserver.NewRouter(httpserver.Deps{
		Registry: registry,
		Hub:      hub,
		Candles:  candles,
		TxQueue:  txq,
		Pools:    monitor,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("server listening on %s", cfg.HTTPAddr)
	log.Printf("health endpoint: http://localhost%s/api/health", cfg.HTTPAddr)
	log.Printf("profect mode: %s", cfg.ProfectMode)
	log.Printf("default trader population: %d", cfg.DefaultPopulation)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		txq.Shutdown()
		hub.Shutdown()
		candles.Shutdown()
		monitor.Shutdown()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
