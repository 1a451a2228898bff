package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"ecommerce-backend/pkg/container"
)

// startServices performs health checks and starts the probe endpoint
func startServices(c *container.Container) error {
	log.Println("============================================")
	log.Println("Coupon Worker Starting...")
	log.Println("============================================")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Println("⏳ Checking Postgres and Redis...")
	if err := c.HealthCheck(ctx); err != nil {
		log.Printf("❌ Health check failed: %v", err)
		return err
	}
	log.Println("✓ Dependencies: OK")

	go startHealthCheckServer()

	return nil
}

// startHealthCheckServer starts HTTP server for health checks
func startHealthCheckServer() {
	http.HandleFunc("/health", healthCheckHandler)
	http.HandleFunc("/ready", readyCheckHandler)

	log.Println("[Health] Starting health check server on :9999")
	if err := http.ListenAndServe(":9999", nil); err != nil {
		log.Printf("[Health] Failed to start: %v", err)
	}
}

// healthCheckHandler handles /health endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"UP","service":"coupon-worker"}`))
}

// readyCheckHandler handles /ready endpoint (Kubernetes readiness probe)
func readyCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"READY"}`))
}
