package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/shoptok/internal/catalog/domain"
	"github.com/smallbiznis/shoptok/internal/clock"
	"github.com/smallbiznis/shoptok/internal/events"
	ledgerdomain "github.com/smallbiznis/shoptok/internal/ledger/domain"
	"github.com/smallbiznis/shoptok/internal/lock"
	obsmetrics "github.com/smallbiznis/shoptok/internal/observability/metrics"
	"github.com/smallbiznis/shoptok/internal/observability/tracing"
	"github.com/smallbiznis/shoptok/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMetadataRefLen = 2048

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Clock      clock.Clock
	Locker     lock.Locker
	Outbox     *events.Outbox
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	clock      clock.Clock
	locker     lock.Locker
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("catalog.service"),
		repo:       p.Repo,
		clock:      p.Clock,
		locker:     p.Locker,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ListProduct(ctx context.Context, req domain.ListProductRequest) (result *domain.Result, err error) {
	ctx, done := s.instrument(ctx, domain.OperationListProduct)
	defer func() { done(err) }()

	seller := strings.TrimSpace(req.Seller)
	if !validSeller(seller) {
		return nil, domain.ErrInvalidSeller
	}
	if req.Price <= 0 {
		return nil, domain.ErrInvalidPrice
	}
	if len(req.MetadataRef) > maxMetadataRefLen {
		return nil, domain.ErrInvalidMetaRef
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := s.create(ctx, tx, seller, []int64{req.Price}, []string{req.MetadataRef})
		if err != nil {
			return err
		}
		result = newResult(domain.OperationListProduct, products)
		return s.publish(ctx, tx, events.EventProductListed, products[0].ID, result)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product listed",
		zap.Int64("product_id", result.ProductIDs[0]),
		zap.String("seller", seller),
		zap.Int64("price", req.Price),
	)
	return result, nil
}

// BatchListProduct creates every listing or none. Ids are contiguous.
func (s *Service) BatchListProduct(ctx context.Context, req domain.BatchListProductRequest) (result *domain.Result, err error) {
	ctx, done := s.instrument(ctx, domain.OperationBatchListProduct)
	defer func() { done(err) }()

	seller := strings.TrimSpace(req.Seller)
	if !validSeller(seller) {
		return nil, domain.ErrInvalidSeller
	}
	if len(req.Prices) == 0 || len(req.Prices) != len(req.MetadataRefs) {
		return nil, domain.ErrArityMismatch
	}
	if len(req.Prices) > domain.MaxBatchSize {
		return nil, domain.ErrBatchTooLarge
	}
	for i, price := range req.Prices {
		if price <= 0 {
			return nil, domain.ErrInvalidPrice
		}
		if len(req.MetadataRefs[i]) > maxMetadataRefLen {
			return nil, domain.ErrInvalidMetaRef
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := s.create(ctx, tx, seller, req.Prices, req.MetadataRefs)
		if err != nil {
			return err
		}
		result = newResult(domain.OperationBatchListProduct, products)
		return s.publish(ctx, tx, events.EventProductBatchListed, products[0].ID, result)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("products batch listed",
		zap.Int64s("product_ids", result.ProductIDs),
		zap.String("seller", seller),
	)
	return result, nil
}

func (s *Service) UpdateProduct(ctx context.Context, req domain.UpdateProductRequest) (result *domain.Result, err error) {
	ctx, done := s.instrument(ctx, domain.OperationUpdateProduct)
	defer func() { done(err) }()

	if req.ProductID <= 0 {
		return nil, domain.ErrInvalidID
	}
	caller := strings.TrimSpace(req.Caller)
	if req.MetadataRef != nil && len(*req.MetadataRef) > maxMetadataRefLen {
		return nil, domain.ErrInvalidMetaRef
	}

	release, err := s.locker.Acquire(ctx, lock.ProductKey(req.ProductID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if caller == "" || caller != item.Seller {
			return domain.ErrNotSeller
		}

		if req.Price != nil {
			if *req.Price <= 0 {
				return domain.ErrInvalidPrice
			}
			item.Price = *req.Price
		}
		if req.Active != nil {
			item.Active = *req.Active
		}
		if req.MetadataRef != nil {
			item.MetadataRef = *req.MetadataRef
		}
		item.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		result = newResult(domain.OperationUpdateProduct, []domain.Product{*item})
		return s.publish(ctx, tx, events.EventProductUpdated, item.ID, result)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product updated", zap.Int64("product_id", req.ProductID))
	return result, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.GetProductTx(ctx, s.db, id)
}

func (s *Service) GetProductTx(ctx context.Context, tx *gorm.DB, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) ListProducts(ctx context.Context, req domain.ListRequest) ([]domain.Product, error) {
	req.Seller = strings.TrimSpace(req.Seller)
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) create(ctx context.Context, tx *gorm.DB, seller string, prices []int64, refs []string) ([]domain.Product, error) {
	firstID, err := db.NextIDs(ctx, tx, domain.ProductSequence, int64(len(prices)))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	products := make([]domain.Product, 0, len(prices))
	for i, price := range prices {
		p := domain.Product{
			ID:          firstID + int64(i),
			Seller:      seller,
			Price:       price,
			MetadataRef: refs[i],
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Create(ctx, tx, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *Service) publish(ctx context.Context, tx *gorm.DB, eventType events.EventType, aggregateID int64, result *domain.Result) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		Type:          eventType,
		AggregateType: events.AggregateProduct,
		AggregateID:   aggregateID,
		Payload:       result,
	})
}

func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "catalog."+operation, attribute.String("operation", operation))
	return ctx, func(err error) {
		tracing.EndSpan(span, err)
		s.obsMetrics.ObserveOperation(operation, err, time.Since(start))
	}
}

func newResult(operation string, products []domain.Product) *domain.Result {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return &domain.Result{
		Operation:  operation,
		ProductIDs: ids,
		Products:   products,
	}
}

func validSeller(seller string) bool {
	return seller != "" && len(seller) <= 128 && !ledgerdomain.IsSystemAccount(seller)
}
