package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product managed from the admin area.
// PriceCents always holds minor currency units.
type Product struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string    `json:"owner_id" gorm:"type:varchar(36);index"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null"`
	Slug        string    `json:"slug" gorm:"type:varchar(120);index"`
	Description string    `json:"description" gorm:"type:text"`
	PriceCents  int64     `json:"price_cents" gorm:"not null"`
	Stock       int       `json:"stock"`
	Images      []Image   `json:"images" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Price returns the major-unit view of the stored price.
func (p *Product) Price() decimal.Decimal {
	return CentsToPrice(p.PriceCents)
}

// Image is a stored picture owned by exactly one product.
type Image struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProductID string    `json:"product_id" gorm:"type:varchar(36);index;not null"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"` // reference returned by the image store
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}
