package main

import (
	"context"
	"time"

	"github.com/UnendingLoop/WatermarkStudio/internal/transport"
)

type StudioAPIService interface {
	transport.StudioService
	ExpireIdle(ctx context.Context, ttl time.Duration) int
}
