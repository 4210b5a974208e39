// config/config.go

package config

import (
	"strings"
	"time"
)

// Telemetry is shared by both binaries.
type Telemetry struct {
	OTelEnabled  bool   `name:"otel-enabled" env:"OTEL_ENABLED" help:"Export traces and metrics over OTLP."`
	OTelEndpoint string `name:"otel-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317" help:"OTLP gRPC collector endpoint."`
	OTelStdout   bool   `name:"otel-stdout" env:"OTEL_STDOUT" help:"Write spans to stdout instead of the collector; metrics are not exported."`
	LogLevel     string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"trace,debug,info,warn,warning,error" help:"Log level."`
}

// TraceEndpoint is the OTLP endpoint for spans, or "" for the stdout exporter.
func (t Telemetry) TraceEndpoint() string {
	if t.OTelStdout {
		return ""
	}
	return t.OTelEndpoint
}

// CartService configures cmd/cartservice.
type CartService struct {
	Telemetry `embed:""`

	Port       string        `name:"port" env:"PORT" default:"8080" help:"HTTP port for the cart API."`
	HealthPort string        `name:"health-port" env:"HEALTH_PORT" default:"7070" help:"gRPC port for health checks."`
	RedisAddr  string        `name:"redis-addr" env:"REDIS_ADDR" help:"Redis address; empty keeps the cart in memory."`
	APIURL     string        `name:"api-url" env:"API_URL" default:"http://localhost:3333" help:"Base URL of the stock/catalog API."`
	APITimeout time.Duration `name:"api-timeout" env:"API_TIMEOUT" default:"10s" help:"Timeout for stock/catalog requests (0 disables)."`
}

// RedisAddress appends the default port when none is given.
func (c CartService) RedisAddress() string {
	if c.RedisAddr == "" || strings.Contains(c.RedisAddr, ":") {
		return c.RedisAddr
	}
	return c.RedisAddr + ":6379"
}

// CatalogService configures cmd/catalogservice.
type CatalogService struct {
	Telemetry `embed:""`

	Port     string `name:"port" env:"PORT" default:"3333" help:"HTTP port for the stock/catalog API."`
	SeedFile string `name:"seed-file" env:"SEED_FILE" help:"JSON file with products and stock; the built-in seed is used when empty."`
}
