package postgresadapter

import (
	"context"

	"github.com/google/uuid"
)

// UUIDGenerator issues time-ordered UUID v7 values so outbox and checkpoint
// ids sort by creation.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
