package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
)

type mockCatalogRepo struct {
	courses  map[string]*models.OfferingInfo
	packages map[string]*models.OfferingInfo
	bundles  map[string][]string
	cycles   map[string]*models.CycleDates
}

func (m *mockCatalogRepo) CourseOfferingInfo(ctx context.Context, offeringID string) (*models.OfferingInfo, error) {
	if info, ok := m.courses[offeringID]; ok {
		return info, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) PackageOfferingInfo(ctx context.Context, offeringID string) (*models.OfferingInfo, error) {
	if info, ok := m.packages[offeringID]; ok {
		return info, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) PackageCourseOfferings(ctx context.Context, packageOfferingID string) ([]string, error) {
	return m.bundles[packageOfferingID], nil
}

func (m *mockCatalogRepo) CycleDatesByCourseOffering(ctx context.Context, offeringID string) (*models.CycleDates, error) {
	if dates, ok := m.cycles[offeringID]; ok {
		return dates, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) CycleDatesByPackageOffering(ctx context.Context, offeringID string) (*models.CycleDates, error) {
	if dates, ok := m.cycles[offeringID]; ok {
		return dates, nil
	}
	return nil, sql.ErrNoRows
}

func TestCatalogEffectivePrice(t *testing.T) {
	repo := &mockCatalogRepo{courses: map[string]*models.OfferingInfo{
		"co-1": {ID: "co-1", Name: "Álgebra", Price: 150},
	}}
	svc := NewCatalogService(repo, nil, time.Minute, NewMetricsService(), zap.NewNop())

	price, err := svc.EffectivePrice(context.Background(), models.OfferingTypeCourse, "co-1")
	require.NoError(t, err)
	assert.Equal(t, 150.0, price)
}

func TestCatalogMissingOfferingPricesZero(t *testing.T) {
	svc := NewCatalogService(&mockCatalogRepo{}, nil, time.Minute, NewMetricsService(), zap.NewNop())

	info, err := svc.OfferingInfo(context.Background(), models.OfferingTypePackage, "gone")
	require.NoError(t, err)
	assert.Equal(t, "gone", info.ID)
	assert.Zero(t, info.Price)
}

func TestCatalogRejectsUnknownOfferingType(t *testing.T) {
	svc := NewCatalogService(&mockCatalogRepo{}, nil, time.Minute, nil, zap.NewNop())

	_, err := svc.OfferingInfo(context.Background(), "bundle", "x")
	require.Error(t, err)
}

func TestCatalogCycleDatesMissingIsNil(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockCatalogRepo{cycles: map[string]*models.CycleDates{
		"co-1": {StartDate: start, EndDate: start.AddDate(0, 4, 0)},
	}}
	svc := NewCatalogService(repo, nil, time.Minute, nil, zap.NewNop())

	dates, err := svc.CycleDates(context.Background(), models.OfferingTypeCourse, "co-1")
	require.NoError(t, err)
	require.NotNil(t, dates)
	assert.Equal(t, start, dates.StartDate)

	dates, err = svc.CycleDates(context.Background(), models.OfferingTypeCourse, "gone")
	require.NoError(t, err)
	assert.Nil(t, dates)
}
