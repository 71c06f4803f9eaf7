package domain

import "time"

// Product is a listing. Seller never changes after creation and products are
// never deleted; deactivation is the only removal.
type Product struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Seller      string    `json:"seller" gorm:"type:varchar(128);not null;index"`
	Price       int64     `json:"price" gorm:"not null"`
	MetadataRef string    `json:"metadata_ref" gorm:"type:text;not null"`
	Active      bool      `json:"active" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// ProductSequence names the id_sequences row products draw from.
const ProductSequence = "products"
