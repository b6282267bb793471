package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"tokoadmin/internal/models"
)

var _ ProductRepository = (*MockProductRepository)(nil)

// MockProductRepository is an in-memory implementation of ProductRepository.
// Writes are serialized and roll back to a snapshot when they fail.
type MockProductRepository struct {
	products map[string]models.Product
	mu       sync.RWMutex
}

// NewMockProductRepository creates a new instance of MockProductRepository.
func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{
		products: make(map[string]models.Product),
	}
}

func cloneProduct(p models.Product) models.Product {
	p.Images = append([]models.Image(nil), p.Images...)
	return p
}

// GetAll returns all products, newest first.
func (r *MockProductRepository) GetAll(_ context.Context) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	productList := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		productList = append(productList, cloneProduct(p))
	}
	sort.SliceStable(productList, func(i, j int) bool {
		return productList[i].CreatedAt.After(productList[j].CreatedAt)
	})
	return productList, nil
}

// GetByID returns a product by its ID.
func (r *MockProductRepository) GetByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, errors.Wrapf(ErrProductNotFound, "product %s", id)
	}
	product = cloneProduct(product)
	return &product, nil
}

// GetImageByID returns an image by its ID.
func (r *MockProductRepository) GetImageByID(_ context.Context, id string) (*models.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		for _, img := range p.Images {
			if img.ID == id {
				img := img
				return &img, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrImageNotFound, "image %s", id)
}

// Save stores the product and assigns IDs to new images.
func (r *MockProductRepository) Save(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if product.ID == "" {
		product.ID = uuid.New().String()
		product.CreatedAt = now
	} else {
		stored, ok := r.products[product.ID]
		if !ok {
			return errors.Wrapf(ErrProductNotFound, "update product %s", product.ID)
		}
		product.CreatedAt = stored.CreatedAt
	}
	product.UpdatedAt = now

	for i := range product.Images {
		image := &product.Images[i]
		if image.ID != "" {
			continue
		}
		image.ID = uuid.New().String()
		image.ProductID = product.ID
		image.CreatedAt = now
	}
	r.products[product.ID] = cloneProduct(*product)
	return nil
}

// Delete removes a product and its images.
func (r *MockProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return errors.Wrapf(ErrProductNotFound, "delete product %s", id)
	}
	delete(r.products, id)
	return nil
}

// DeleteImage removes an image, restoring it when beforeCommit fails.
func (r *MockProductRepository) DeleteImage(_ context.Context, id string, beforeCommit func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for productID, p := range r.products {
		for i, img := range p.Images {
			if img.ID != id {
				continue
			}
			snapshot := cloneProduct(p)
			p.Images = append(append([]models.Image(nil), p.Images[:i]...), p.Images[i+1:]...)
			r.products[productID] = p
			if beforeCommit != nil {
				if err := beforeCommit(); err != nil {
					r.products[productID] = snapshot
					return err
				}
			}
			return nil
		}
	}
	return errors.Wrapf(ErrImageNotFound, "delete image %s", id)
}
