package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/shoptok/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	ListProduct(ctx context.Context, req ListProductRequest) (*Result, error)
	BatchListProduct(ctx context.Context, req BatchListProductRequest) (*Result, error)
	UpdateProduct(ctx context.Context, req UpdateProductRequest) (*Result, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context, req ListRequest) ([]Product, error)

	// GetProductTx reads a product through an open transaction.
	GetProductTx(ctx context.Context, tx *gorm.DB, id int64) (*Product, error)
}

type ListProductRequest struct {
	Seller      string `json:"-"`
	Price       int64  `json:"price"`
	MetadataRef string `json:"metadata_ref"`
}

type BatchListProductRequest struct {
	Seller       string   `json:"-"`
	Prices       []int64  `json:"prices"`
	MetadataRefs []string `json:"metadata_refs"`
}

// UpdateProductRequest changes only the non-nil fields.
type UpdateProductRequest struct {
	Caller      string  `json:"-"`
	ProductID   int64   `json:"-"`
	Price       *int64  `json:"price"`
	Active      *bool   `json:"active"`
	MetadataRef *string `json:"metadata_ref"`
}

type ListRequest struct {
	Seller string
	Active *bool
	pagination.Page
}

const (
	OperationListProduct      = "list_product"
	OperationBatchListProduct = "batch_list_product"
	OperationUpdateProduct    = "update_product"
)

// Result describes a successful catalog mutation.
type Result struct {
	Operation  string    `json:"operation"`
	ProductIDs []int64   `json:"product_ids"`
	Products   []Product `json:"products"`
}

// MaxBatchSize bounds a single batchListProduct call.
const MaxBatchSize = 100

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidID      = errors.New("invalid_id")
	ErrInvalidSeller  = errors.New("invalid_seller")
	ErrInvalidPrice   = errors.New("invalid_price")
	ErrArityMismatch  = errors.New("arity_mismatch")
	ErrBatchTooLarge  = errors.New("batch_too_large")
	ErrNotSeller      = errors.New("not_seller")
	ErrInvalidMetaRef = errors.New("invalid_metadata_ref")
)
