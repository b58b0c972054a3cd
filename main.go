package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	log.SetPrefix("nutrition-ledger-api: ")

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open %s store: %v\n", cfg.StoreDriver, err)
		os.Exit(1)
	}
	defer store.Close()
	fmt.Printf("%s store ready!\n", cfg.StoreDriver)

	feed := newChangeFeed()
	l := newLedger(store, feed, cfg.DefaultTZ)
	if n, ok := store.(changeNotifier); ok {
		go listenForChanges(ctx, n, feed)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: newRouter(newHandler(store, l, feed, cfg)),
	}
	go func() {
		fmt.Printf("Listening on %s\n", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] shutdown: %v", err)
	}
}
