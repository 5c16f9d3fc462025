package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking/internal/config"
	"parking/internal/db"
	"parking/internal/handlers"
	"parking/internal/queue"
	"parking/internal/services"
	"parking/internal/store"
	"parking/internal/websocket"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	vehicles := store.NewVehicleStore(database)
	tariffs := store.NewTariffStore(database)
	sessions := store.NewSessionStore(database)
	records := store.NewGateRecordStore(database)
	receipts := store.NewReceiptStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()
	publisher := queue.NewPublisher(cfg.AMQPURL)
	resolver := services.NewTariffResolver(tariffs)
	ledger := services.NewLedgerService(txRunner, users, receipts, audit, hub)
	sessionService := services.NewSessionService(txRunner, users, vehicles, sessions, records, resolver, ledger, audit, hub, publisher)

	handler := handlers.New(txRunner, cfg, users, vehicles, tariffs, records, receipts, admin, audit, sessionService, ledger, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("parking API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
