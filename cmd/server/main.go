package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	internalhttp "geoattend/internal/http"
	"geoattend/internal/jobs"
	"geoattend/internal/qr"
	"geoattend/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := store.NewSessionStore(cfg.SessionValidity)
	ledger := store.NewLedger()
	service := attendance.NewService(sessions, ledger, cfg.GeofenceRadiusMeters)

	server := internalhttp.NewServer(cfg, service, qr.NewPNGEncoder())
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartSessionSweep(ctx, cfg, service)

	go func() {
		log.Printf("geoattend http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
