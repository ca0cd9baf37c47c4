package connection

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Connection) error
	GetByID(ctx context.Context, id uuid.UUID) (*Connection, error)
	List(ctx context.Context, limit, offset int) ([]*Connection, int, error)
	UpdateToken(ctx context.Context, id uuid.UUID, bearerToken string) error
	Delete(ctx context.Context, id uuid.UUID) error
}
