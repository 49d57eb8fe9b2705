package models

import "time"

// OfferingType discriminates what an enrollment or catalog lookup targets.
type OfferingType string

const (
	OfferingTypeCourse  OfferingType = "course"
	OfferingTypePackage OfferingType = "package"
)

// Valid reports whether the offering type is one of the known values.
func (t OfferingType) Valid() bool {
	return t == OfferingTypeCourse || t == OfferingTypePackage
}

// Cycle bounds offerings to an academic term.
type Cycle struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
}

// CycleDates is the slim projection returned alongside acceptance results.
type CycleDates struct {
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
}

// Course is a catalog entry with a base price.
type Course struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
	BasePrice   float64 `db:"base_price" json:"base_price"`
}

// Package bundles courses under a single price.
type Package struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
	BasePrice   float64 `db:"base_price" json:"base_price"`
}

// CourseOffering is a cycle-scoped, priced instance of a course.
type CourseOffering struct {
	ID            string   `db:"id" json:"id"`
	CourseID      string   `db:"course_id" json:"course_id"`
	CycleID       string   `db:"cycle_id" json:"cycle_id"`
	GroupLabel    *string  `db:"group_label" json:"group_label,omitempty"`
	TeacherID     *string  `db:"teacher_id" json:"teacher_id,omitempty"`
	PriceOverride *float64 `db:"price_override" json:"price_override,omitempty"`
	Capacity      *int     `db:"capacity" json:"capacity,omitempty"`
}

// PackageOffering is a cycle-scoped, priced instance of a package.
type PackageOffering struct {
	ID            string   `db:"id" json:"id"`
	PackageID     string   `db:"package_id" json:"package_id"`
	CycleID       string   `db:"cycle_id" json:"cycle_id"`
	GroupLabel    *string  `db:"group_label" json:"group_label,omitempty"`
	PriceOverride *float64 `db:"price_override" json:"price_override,omitempty"`
	Capacity      *int     `db:"capacity" json:"capacity,omitempty"`
}

// OfferingInfo is the catalog projection the enrollment engine works with:
// display name, group label, and the effective price (override over base).
type OfferingInfo struct {
	ID         string  `db:"id" json:"id"`
	Name       string  `db:"name" json:"name"`
	GroupLabel *string `db:"group_label" json:"group_label,omitempty"`
	Price      float64 `db:"price" json:"price"`
}

// Display renders the offering name with its group label, the way conflict
// messages and summaries present it.
func (o OfferingInfo) Display() string {
	if o.GroupLabel != nil && *o.GroupLabel != "" {
		return o.Name + " (Grupo " + *o.GroupLabel + ")"
	}
	return o.Name
}

// Schedule is a weekly slot of a course offering; attendance hangs off it.
type Schedule struct {
	ID               string  `db:"id" json:"id"`
	CourseOfferingID string  `db:"course_offering_id" json:"course_offering_id"`
	DayOfWeek        string  `db:"day_of_week" json:"day_of_week"`
	StartTime        string  `db:"start_time" json:"start_time"`
	EndTime          string  `db:"end_time" json:"end_time"`
	Classroom        *string `db:"classroom" json:"classroom,omitempty"`
}
