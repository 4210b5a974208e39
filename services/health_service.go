// services/health_service.go

package services

import (
	"context"

	"github.com/norun9/rocketshoes-cart/cartstore"
	"github.com/sirupsen/logrus"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthCheckService implements the gRPC health check on top of the cart store.
type HealthCheckService struct {
	store cartstore.ICartStore
	log   logrus.FieldLogger
	healthpb.UnimplementedHealthServer
}

// NewHealthCheckService constructor
func NewHealthCheckService(store cartstore.ICartStore, log logrus.FieldLogger) *HealthCheckService {
	return &HealthCheckService{store: store, log: log}
}

// Check reports SERVING while the cart store answers pings.
func (h *HealthCheckService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if h.store.Ping(ctx) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	h.log.Warn("health check: cart store unreachable")
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
}
