package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
)

type studentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Update(ctx context.Context, id string, patch models.StudentPatch) error
}

// StudentService exposes student profiles: students read their own, admins
// correct names and parent contact data. DNI is immutable because it doubles
// as the login username.
type StudentService struct {
	repo   studentStore
	logger *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(repo studentStore, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logger: logger}
}

// Profile returns one student's record.
func (s *StudentService) Profile(ctx context.Context, studentID string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "estudiante no encontrado")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// UpdateProfile applies an admin patch and returns the updated record. An
// empty patch is accepted and changes nothing.
func (s *StudentService) UpdateProfile(ctx context.Context, studentID string, patch models.StudentPatch) (*models.Student, error) {
	if _, err := s.Profile(ctx, studentID); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, studentID, patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.logger.Info("student profile updated", zap.String("student_id", studentID))
	return s.Profile(ctx, studentID)
}
