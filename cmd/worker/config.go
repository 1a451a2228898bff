package main

import (
	"log"

	"ecommerce-backend/internal/shared/utils"
)

// Config holds the worker-local configuration
type Config struct {
	RedisAddr     string
	RedisPassword string
	Concurrency   int
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	cfg := &Config{
		RedisAddr:     utils.GetEnvVariable("REDIS_HOST", "localhost:6379"),
		RedisPassword: utils.GetEnvVariable("REDIS_PASSWORD", ""),
		Concurrency:   utils.GetEnvVariableInt("WORKER_CONCURRENCY", 20),
	}

	log.Printf("[Config] Redis: %s, Concurrency: %d", cfg.RedisAddr, cfg.Concurrency)

	return cfg
}
