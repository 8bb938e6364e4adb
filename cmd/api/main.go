package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"lastmile/internal/api"
	"lastmile/internal/config"
	"lastmile/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logging.New("info", false)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Console)

	srv, err := api.NewServer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Middleware(log, srv.Mux()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", cfg.Addr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
