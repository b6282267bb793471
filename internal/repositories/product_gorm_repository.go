package repositories

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tokoadmin/internal/models"
)

var _ ProductRepository = (*GORMProductRepository)(nil)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

func orderedImages(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// GetAll retrieves all products with their images, newest first.
func (r *GORMProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Images", orderedImages).
		Order("created_at DESC").
		Find(&products).Error
	if err != nil {
		return nil, errors.Wrap(err, "get all products")
	}
	return products, nil
}

// GetByID retrieves a single product and its images.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Images", orderedImages).
		First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrProductNotFound, "product %s", id)
		}
		return nil, errors.Wrapf(err, "get product %s", id)
	}
	return &product, nil
}

// GetImageByID retrieves a single image record.
func (r *GORMProductRepository) GetImageByID(ctx context.Context, id string) (*models.Image, error) {
	var image models.Image
	if err := r.db.WithContext(ctx).First(&image, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrImageNotFound, "image %s", id)
		}
		return nil, errors.Wrapf(err, "get image %s", id)
	}
	return &image, nil
}

// Save inserts or updates the product and inserts its new images.
// When the transaction fails the product is left as it was passed in,
// without IDs for rows that were never committed.
func (r *GORMProductRepository) Save(ctx context.Context, product *models.Product) error {
	before := *product
	before.Images = append([]models.Image(nil), product.Images...)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if product.ID == "" {
			product.ID = uuid.New().String()
			if err := tx.Omit(clause.Associations).Create(product).Error; err != nil {
				return errors.Wrap(err, "create product")
			}
		} else {
			product.UpdatedAt = time.Now()
			res := tx.Model(&models.Product{}).
				Where("id = ?", product.ID).
				Updates(map[string]interface{}{
					"name":        product.Name,
					"slug":        product.Slug,
					"description": product.Description,
					"price_cents": product.PriceCents,
					"stock":       product.Stock,
					"updated_at":  product.UpdatedAt,
				})
			if res.Error != nil {
				return errors.Wrapf(res.Error, "update product %s", product.ID)
			}
			if res.RowsAffected == 0 {
				return errors.Wrapf(ErrProductNotFound, "update product %s", product.ID)
			}
		}

		for i := range product.Images {
			image := &product.Images[i]
			if image.ID != "" {
				continue
			}
			image.ID = uuid.New().String()
			image.ProductID = product.ID
			if err := tx.Create(image).Error; err != nil {
				return errors.Wrapf(err, "create image %s", image.Name)
			}
		}
		return nil
	})
	if err != nil {
		*product = before
	}
	return err
}

// Delete removes a product and its image records.
func (r *GORMProductRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.Image{}).Error; err != nil {
			return errors.Wrapf(err, "delete images of product %s", id)
		}
		res := tx.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return errors.Wrapf(res.Error, "delete product %s", id)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrProductNotFound, "delete product %s", id)
		}
		return nil
	})
}

// DeleteImage removes an image record, committing only if beforeCommit succeeds.
func (r *GORMProductRepository) DeleteImage(ctx context.Context, id string, beforeCommit func() error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Image{}, "id = ?", id)
		if res.Error != nil {
			return errors.Wrapf(res.Error, "delete image %s", id)
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrImageNotFound, "delete image %s", id)
		}
		if beforeCommit != nil {
			return beforeCommit()
		}
		return nil
	})
}
