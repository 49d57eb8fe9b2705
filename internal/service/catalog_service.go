package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
)

type catalogRepository interface {
	CourseOfferingInfo(ctx context.Context, offeringID string) (*models.OfferingInfo, error)
	PackageOfferingInfo(ctx context.Context, offeringID string) (*models.OfferingInfo, error)
	PackageCourseOfferings(ctx context.Context, packageOfferingID string) ([]string, error)
	CycleDatesByCourseOffering(ctx context.Context, offeringID string) (*models.CycleDates, error)
	CycleDatesByPackageOffering(ctx context.Context, offeringID string) (*models.CycleDates, error)
}

// CatalogService resolves offering metadata and effective prices. Lookups are
// cached in Redis because the same offerings are read on every enrollment
// create and every payment approval.
type CatalogService struct {
	repo     catalogRepository
	redis    *redis.Client
	cacheTTL time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewCatalogService constructs the service. The redis client may be nil, in
// which case every lookup goes to the database.
func NewCatalogService(repo catalogRepository, redisClient *redis.Client, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *CatalogService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		repo:     repo,
		redis:    redisClient,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		logger:   logger,
	}
}

// OfferingInfo returns name, group label and effective price for an offering.
// A missing offering is not an error: the caller gets a zero-priced stub so a
// payment plan can still be created against a catalog row deleted mid-flight.
func (s *CatalogService) OfferingInfo(ctx context.Context, offeringType models.OfferingType, offeringID string) (*models.OfferingInfo, error) {
	key := fmt.Sprintf("catalog:info:%s:%s", offeringType, offeringID)
	if cached := s.cacheGet(ctx, key); cached != nil {
		return cached, nil
	}

	var (
		info *models.OfferingInfo
		err  error
	)
	switch offeringType {
	case models.OfferingTypeCourse:
		info, err = s.repo.CourseOfferingInfo(ctx, offeringID)
	case models.OfferingTypePackage:
		info, err = s.repo.PackageOfferingInfo(ctx, offeringID)
	default:
		return nil, fmt.Errorf("unknown offering type %q", offeringType)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.OfferingInfo{ID: offeringID, Price: 0}, nil
		}
		return nil, fmt.Errorf("resolve offering info: %w", err)
	}

	s.cacheSet(ctx, key, info)
	return info, nil
}

// EffectivePrice returns the price an enrollment of this offering costs.
func (s *CatalogService) EffectivePrice(ctx context.Context, offeringType models.OfferingType, offeringID string) (float64, error) {
	info, err := s.OfferingInfo(ctx, offeringType, offeringID)
	if err != nil {
		return 0, err
	}
	return info.Price, nil
}

// PackageCourseOfferings lists the course offerings a package offering bundles.
func (s *CatalogService) PackageCourseOfferings(ctx context.Context, packageOfferingID string) ([]string, error) {
	ids, err := s.repo.PackageCourseOfferings(ctx, packageOfferingID)
	if err != nil {
		return nil, fmt.Errorf("resolve package courses: %w", err)
	}
	return ids, nil
}

// CycleDates resolves the start and end dates of the cycle an offering belongs
// to. Returns nil without error when the offering or its cycle is missing.
func (s *CatalogService) CycleDates(ctx context.Context, offeringType models.OfferingType, offeringID string) (*models.CycleDates, error) {
	var (
		dates *models.CycleDates
		err   error
	)
	switch offeringType {
	case models.OfferingTypeCourse:
		dates, err = s.repo.CycleDatesByCourseOffering(ctx, offeringID)
	case models.OfferingTypePackage:
		dates, err = s.repo.CycleDatesByPackageOffering(ctx, offeringID)
	default:
		return nil, fmt.Errorf("unknown offering type %q", offeringType)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve cycle dates: %w", err)
	}
	return dates, nil
}

func (s *CatalogService) cacheGet(ctx context.Context, key string) *models.OfferingInfo {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.metrics.RecordCacheLookup(false)
		return nil
	}
	var info models.OfferingInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		s.metrics.RecordCacheLookup(false)
		return nil
	}
	s.metrics.RecordCacheLookup(true)
	return &info
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, info *models.OfferingInfo) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops the cached entries for an offering after a catalog update.
func (s *CatalogService) Invalidate(ctx context.Context, offeringType models.OfferingType, offeringID string) {
	if s.redis == nil {
		return
	}
	key := fmt.Sprintf("catalog:info:%s:%s", offeringType, offeringID)
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
