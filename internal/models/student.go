package models

import "time"

// Student represents a learner registered in the academy. Parent contact
// info is what absence and payment notifications are delivered to.
type Student struct {
	ID          string    `db:"id" json:"id"`
	DNI         string    `db:"dni" json:"dni"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Phone       string    `db:"phone" json:"phone"`
	ParentName  string    `db:"parent_name" json:"parent_name"`
	ParentPhone string    `db:"parent_phone" json:"parent_phone"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudentPatch enumerates the fields an admin edit may change.
type StudentPatch struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Phone       *string `json:"phone"`
	ParentName  *string `json:"parent_name"`
	ParentPhone *string `json:"parent_phone"`
}
