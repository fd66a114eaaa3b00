// Command monitord serves the monitoring API that bme680mon reports to.
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

	"github.com/gin-gonic/gin"

	"github.com/Uranury/bme680mon/config"
	"github.com/Uranury/bme680mon/logging"
	"github.com/Uranury/bme680mon/server"
	"github.com/Uranury/bme680mon/store"
)

func main() {
	cfg, err := config.LoadMonitord(os.Args[1:])
	if err != nil {
		if config.IsHelp(err) {
			fmt.Println(err)
			return
		}
		log.Fatal(err)
	}
	w, closeLog := logging.Setup(cfg.Logging, os.Stderr)
	defer closeLog()
	gin.DefaultWriter = w
	gin.DefaultErrorWriter = w

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = serve(ctx, cfg)
	stop()
	if err != nil {
		log.Printf("ERROR: %v", err)
		closeLog()
		os.Exit(1)
	}
}

// serve runs the API until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, cfg *config.Monitord) error {
	st, err := store.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	var sinks []server.Sink
	if cfg.InfluxEnabled() {
		influx := server.NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		defer influx.Close()
		sinks = append(sinks, influx)
		log.Printf("Mirroring samples to InfluxDB %s (bucket %s)", cfg.InfluxURL, cfg.InfluxBucket)
	}

	hub := server.NewHub()
	defer hub.Close()

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(st, hub, sinks...).Router(),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
			return
		}
		log.Println("Server stopped")
	}()

	log.Printf("Server starting on %s", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}
