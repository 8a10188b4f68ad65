package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordparty/go/internal/gateway"
)

type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	Source            string   `json:"source"`
	DatabaseConnected bool     `json:"database_connected"`
	NATSConnected     bool     `json:"nats_connected"`
	Rooms             []string `json:"rooms"`
	Connections       int      `json:"connections"`
	Errors            []string `json:"errors"`
}

type natsConn interface {
	IsConnected() bool
}

// HealthChecker reports on the process dependencies. db and nats are nil
// when the configured source does not use them.
type HealthChecker struct {
	source  string
	db      *sql.DB
	nats    natsConn
	rooms   func() []string
	gateway *gateway.Service
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Source:  h.source,
		Errors:  []string{},
	}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		} else {
			status.DatabaseConnected = true
		}
	}

	if h.nats != nil {
		status.NATSConnected = h.nats.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.Rooms = h.rooms()
	status.Connections = h.gateway.Stats().TotalConnections
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}
