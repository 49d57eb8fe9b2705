package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/academia-platform/academia-api/internal/models"
)

// StudentRepository handles persistence of students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, dni, first_name, last_name, phone, parent_name, parent_phone, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByDNI returns a student by national ID.
func (r *StudentRepository) FindByDNI(ctx context.Context, dni string) (*models.Student, error) {
	const query = `SELECT id, dni, first_name, last_name, phone, parent_name, parent_phone, created_at, updated_at
        FROM students WHERE dni = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, dni); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create persists a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, dni, first_name, last_name, phone, parent_name, parent_phone, created_at, updated_at)
        VALUES (:id, :dni, :first_name, :last_name, :phone, :parent_name, :parent_phone, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update applies the admin patch to a student row.
func (r *StudentRepository) Update(ctx context.Context, id string, patch models.StudentPatch) error {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.FirstName != nil {
		add("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		add("last_name", *patch.LastName)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.ParentName != nil {
		add("parent_name", *patch.ParentName)
	}
	if patch.ParentPhone != nil {
		add("parent_phone", *patch.ParentPhone)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE students SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}
