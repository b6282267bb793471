package repositories

import (
	"context"

	"github.com/go-faster/errors"

	"tokoadmin/internal/models"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrImageNotFound   = errors.New("image not found")
)

// ProductRepository defines the interface for product data access.
//
// Save writes the product and every image without an ID in one transaction.
// DeleteImage removes the image record and commits only when beforeCommit
// returns nil; otherwise the record is kept and the error is returned.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetImageByID(ctx context.Context, id string) (*models.Image, error)
	Save(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
	DeleteImage(ctx context.Context, id string, beforeCommit func() error) error
}
