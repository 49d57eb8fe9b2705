package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/academia-platform/academia-api/internal/models"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
)

type mockUserRepo struct {
	byUsername map[string]*models.User
	created    []*models.User
	touched    []string
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if u, ok := m.byUsername[username]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = fmt.Sprintf("user-%d", len(m.created)+1)
	cp := *user
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockUserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	m.touched = append(m.touched, id)
	return nil
}

type mockStudentRepo struct {
	byDNI   map[string]*models.Student
	created []*models.Student
}

func (m *mockStudentRepo) FindByDNI(ctx context.Context, dni string) (*models.Student, error) {
	if s, ok := m.byDNI[dni]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = fmt.Sprintf("st-%d", len(m.created)+1)
	cp := *student
	m.created = append(m.created, &cp)
	return nil
}

func authFixture(users *mockUserRepo, students *mockStudentRepo) *AuthService {
	return NewAuthService(users, students, nil, zap.NewNop(), AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "academia-api",
	})
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthLogin(t *testing.T) {
	relatedID := "st-1"
	users := &mockUserRepo{byUsername: map[string]*models.User{
		"12345678": {ID: "user-1", Username: "12345678", PasswordHash: hashFor(t, "secret1"), Role: models.RoleStudent, RelatedID: &relatedID, Active: true},
	}}
	svc := authFixture(users, &mockStudentRepo{})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "12345678", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	assert.Equal(t, []string{"user-1"}, users.touched)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "st-1", claims.RelatedID)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	users := &mockUserRepo{byUsername: map[string]*models.User{
		"admin": {ID: "user-1", Username: "admin", PasswordHash: hashFor(t, "secret1"), Role: models.RoleAdmin, Active: true},
	}}
	svc := authFixture(users, &mockStudentRepo{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginUnknownUser(t *testing.T) {
	svc := authFixture(&mockUserRepo{}, &mockStudentRepo{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	users := &mockUserRepo{byUsername: map[string]*models.User{
		"admin": {ID: "user-1", Username: "admin", PasswordHash: hashFor(t, "secret1"), Role: models.RoleAdmin, Active: false},
	}}
	svc := authFixture(users, &mockStudentRepo{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "admin", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthRegisterStudent(t *testing.T) {
	users := &mockUserRepo{}
	students := &mockStudentRepo{}
	svc := authFixture(users, students)

	resp, err := svc.RegisterStudent(context.Background(), models.RegisterStudentRequest{
		DNI:         "87654321",
		FirstName:   "Rosa",
		LastName:    "Flores",
		Phone:       "+51955444333",
		ParentName:  "Marta Flores",
		ParentPhone: "+51955444000",
		Password:    "secret1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Rosa Flores", resp.User.FullName)

	require.Len(t, students.created, 1)
	require.Len(t, users.created, 1)
	login := users.created[0]
	assert.Equal(t, "87654321", login.Username)
	assert.Equal(t, models.RoleStudent, login.Role)
	require.NotNil(t, login.RelatedID)
	assert.Equal(t, students.created[0].ID, *login.RelatedID)
	assert.True(t, login.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(login.PasswordHash), []byte("secret1")))
}

func TestAuthRegisterStudentDuplicateDNI(t *testing.T) {
	students := &mockStudentRepo{byDNI: map[string]*models.Student{
		"87654321": {ID: "st-1", DNI: "87654321"},
	}}
	svc := authFixture(&mockUserRepo{}, students)

	_, err := svc.RegisterStudent(context.Background(), models.RegisterStudentRequest{
		DNI:         "87654321",
		FirstName:   "Rosa",
		LastName:    "Flores",
		Phone:       "+51955444333",
		ParentName:  "Marta Flores",
		ParentPhone: "+51955444000",
		Password:    "secret1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthValidateTokenRejectsTampered(t *testing.T) {
	users := &mockUserRepo{byUsername: map[string]*models.User{
		"admin": {ID: "user-1", Username: "admin", PasswordHash: hashFor(t, "secret1"), Role: models.RoleAdmin, Active: true},
	}}
	svc := authFixture(users, &mockStudentRepo{})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "admin", Password: "secret1"})
	require.NoError(t, err)

	other := authFixture(users, &mockStudentRepo{})
	other.config.Secret = "different"
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
