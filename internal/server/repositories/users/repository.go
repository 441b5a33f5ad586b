package users

import (
	"context"

	"github.com/dmitrijs2005/pointledger/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByIDForUpdate locks the user row until the enclosing transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	UpdateActivity(ctx context.Context, user *models.User) error
}
