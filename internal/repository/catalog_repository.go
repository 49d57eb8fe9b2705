package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/academia-platform/academia-api/internal/models"
)

// CatalogRepository provides the read-only catalog lookups the enrollment
// engine depends on: effective prices, package membership, cycle dates.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// CourseOfferingInfo returns name, group label and effective price of a
// course offering. The effective price is the override when set, else the
// course base price.
func (r *CatalogRepository) CourseOfferingInfo(ctx context.Context, offeringID string) (*models.OfferingInfo, error) {
	const query = `SELECT co.id, c.name, co.group_label, COALESCE(co.price_override, c.base_price) AS price
        FROM course_offerings co
        JOIN courses c ON co.course_id = c.id
        WHERE co.id = $1`
	var info models.OfferingInfo
	if err := r.db.GetContext(ctx, &info, query, offeringID); err != nil {
		return nil, err
	}
	return &info, nil
}

// PackageOfferingInfo returns name, group label and effective price of a
// package offering.
func (r *CatalogRepository) PackageOfferingInfo(ctx context.Context, offeringID string) (*models.OfferingInfo, error) {
	const query = `SELECT po.id, p.name, po.group_label, COALESCE(po.price_override, p.base_price) AS price
        FROM package_offerings po
        JOIN packages p ON po.package_id = p.id
        WHERE po.id = $1`
	var info models.OfferingInfo
	if err := r.db.GetContext(ctx, &info, query, offeringID); err != nil {
		return nil, err
	}
	return &info, nil
}

// PackageCourseOfferings lists the course offerings bound to a package
// offering via package_offering_courses.
func (r *CatalogRepository) PackageCourseOfferings(ctx context.Context, packageOfferingID string) ([]string, error) {
	const query = `SELECT course_offering_id FROM package_offering_courses WHERE package_offering_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, packageOfferingID); err != nil {
		return nil, err
	}
	return ids, nil
}

// CycleDatesByCourseOffering resolves the cycle dates of a course offering.
func (r *CatalogRepository) CycleDatesByCourseOffering(ctx context.Context, offeringID string) (*models.CycleDates, error) {
	const query = `SELECT cyc.start_date, cyc.end_date
        FROM course_offerings co
        JOIN cycles cyc ON cyc.id = co.cycle_id
        WHERE co.id = $1`
	var dates models.CycleDates
	if err := r.db.GetContext(ctx, &dates, query, offeringID); err != nil {
		return nil, err
	}
	return &dates, nil
}

// CycleDatesByPackageOffering resolves the cycle dates of a package offering.
func (r *CatalogRepository) CycleDatesByPackageOffering(ctx context.Context, offeringID string) (*models.CycleDates, error) {
	const query = `SELECT cyc.start_date, cyc.end_date
        FROM package_offerings po
        JOIN cycles cyc ON cyc.id = po.cycle_id
        WHERE po.id = $1`
	var dates models.CycleDates
	if err := r.db.GetContext(ctx, &dates, query, offeringID); err != nil {
		return nil, err
	}
	return &dates, nil
}
