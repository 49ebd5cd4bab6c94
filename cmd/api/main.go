package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tricto/go-slot-store/internal/config"
	"github.com/tricto/go-slot-store/internal/database"
	"github.com/tricto/go-slot-store/internal/events"
	"github.com/tricto/go-slot-store/internal/fulfillment"
	"github.com/tricto/go-slot-store/internal/httpx"
	"github.com/tricto/go-slot-store/internal/redisx"
	"github.com/tricto/go-slot-store/internal/slot"
	"github.com/tricto/go-slot-store/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	rdb := redisx.New(cfg.Redis.Addr)
	defer rdb.Close()

	producer := events.NewProducer(cfg.Kafka.Brokers, 1024)
	producer.Start(ctx)

	products := &store.ProductStore{DB: db}
	slots := &store.SlotStore{DB: db}
	orders := &store.OrderStore{DB: db}

	allocator := slot.NewAllocator(slots)
	workflow := fulfillment.NewWorkflow(orders, products, allocator, cfg.Fulfillment.Atomic)
	if cfg.Fulfillment.Atomic {
		log.Printf("Fulfillment mode: atomic")
	} else {
		log.Printf("Fulfillment mode: best-effort")
	}

	router := httpx.NewRouter()
	(&httpx.ProductsHandler{Products: products}).Register(router)
	(&httpx.SlotsHandler{Slots: slots, Alloc: allocator, Redis: rdb}).Register(router)
	(&httpx.OrdersHandler{Flow: workflow, Producer: producer, Redis: rdb, Service: cfg.ServiceName}).Register(router)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	producer.Close()
	cancel()
	producer.WaitClosed()
}
