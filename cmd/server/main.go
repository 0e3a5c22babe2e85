/*
main.go - Server entry point

PURPOSE:
  Wires the storage, domain components and HTTP router together, starts the
  auto-sync scheduler and runs the server with graceful shutdown.

FLAGS:
  -port                HTTP listen port (default 8080)
  -db                  SQLite database path (default timebank.db)
  -sync-hour           UTC hour for the nightly Clockify sync (default 3)
  -sync-lookback-days  Days of history each auto-sync run pulls (default 7)
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/timebank/api"
	"github.com/warp/timebank/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP listen port")
	dbPath := flag.String("db", "timebank.db", "SQLite database path")
	syncHour := flag.Int("sync-hour", 3, "UTC hour for the nightly Clockify sync")
	syncLookback := flag.Int("sync-lookback-days", 7, "days of history each auto-sync run pulls")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	go api.StartAutoSync(schedCtx, handler, *syncHour, *syncLookback)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("timebank server listening on :%d (db: %s)", *port, *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}
