package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/gateway"
)

func setupServer(config *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Register gateway routes (WebSocket and REST)
	services.Gateway.RegisterRoutes(mux)

	mux.Handle("GET /health", services.Health)
	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		info := map[string]any{
			"service":     "roomwatch",
			"source":      config.Source.Kind,
			"rooms":       services.Rooms.Rooms(),
			"connections": services.Gateway.Stats().TotalConnections,
		}
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})

	return &http.Server{
		Addr:        fmt.Sprintf(":%s", config.HTTP.Port),
		Handler:     gateway.WrapHandler(mux, config.HTTP.AllowedOrigins),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}
