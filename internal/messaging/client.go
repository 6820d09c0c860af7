// Package messaging delivers funding updates to the downstream message bus.
package messaging

import (
	"context"

	"github.com/irfndi/funding-collector/internal/models"
)

// Client sends one tagged message to target and returns the bus-assigned id.
type Client interface {
	Send(ctx context.Context, target string, tags []models.Tag, data []byte) (string, error)
}
