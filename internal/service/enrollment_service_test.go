package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
	appErrors "github.com/academia-platform/academia-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	items         map[string]*models.Enrollment
	activeCourse  map[string]*models.OfferingInfo
	viaPackage    map[string]*models.CourseViaPackageConflict
	activePackage map[string]*models.OfferingInfo
	courseInPkg   map[string]*models.OfferingInfo
	cascades      map[string]bool
	created       []*models.Enrollment
	statusUpdates map[string]models.EnrollmentStatus
	acceptedPkgs  []string
	deleted       []string
	students      []models.EnrollmentDetail

	tx              *mockTxRunner
	writesOutsideTx int
}

func (m *mockEnrollmentRepo) trackWrite() {
	if m.tx != nil && !m.tx.active {
		m.writesOutsideTx++
	}
}

func conflictKey(studentID, offeringID string) string {
	return studentID + "|" + offeringID
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.items[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ActiveCourseEnrollment(ctx context.Context, studentID, courseOfferingID string) (*models.OfferingInfo, error) {
	if info, ok := m.activeCourse[conflictKey(studentID, courseOfferingID)]; ok {
		return info, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) CourseViaActivePackage(ctx context.Context, studentID, courseOfferingID string) (*models.CourseViaPackageConflict, error) {
	if c, ok := m.viaPackage[conflictKey(studentID, courseOfferingID)]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ActivePackageEnrollment(ctx context.Context, studentID, packageOfferingID string) (*models.OfferingInfo, error) {
	if info, ok := m.activePackage[conflictKey(studentID, packageOfferingID)]; ok {
		return info, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ActiveCourseInPackage(ctx context.Context, studentID, packageOfferingID string) (*models.OfferingInfo, error) {
	if info, ok := m.courseInPkg[conflictKey(studentID, packageOfferingID)]; ok {
		return info, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	m.trackWrite()
	enrollment.ID = fmt.Sprintf("enr-%d", len(m.created)+1)
	cp := *enrollment
	m.created = append(m.created, &cp)
	if m.items == nil {
		m.items = map[string]*models.Enrollment{}
	}
	m.items[enrollment.ID] = &cp
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, acceptedAt *time.Time) error {
	m.trackWrite()
	if m.statusUpdates == nil {
		m.statusUpdates = map[string]models.EnrollmentStatus{}
	}
	m.statusUpdates[id] = status
	if e, ok := m.items[id]; ok {
		e.Status = status
		e.AcceptedAt = acceptedAt
	}
	return nil
}

func (m *mockEnrollmentRepo) AcceptPackageCourses(ctx context.Context, studentID, packageOfferingID string, acceptedAt time.Time) error {
	m.trackWrite()
	m.acceptedPkgs = append(m.acceptedPkgs, conflictKey(studentID, packageOfferingID))
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

func (m *mockEnrollmentRepo) FindCascade(ctx context.Context, studentID, courseOfferingID, packageOfferingID string) (*models.Enrollment, error) {
	if m.cascades[studentID+"|"+courseOfferingID+"|"+packageOfferingID] {
		return &models.Enrollment{}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.students, nil
}

func (m *mockEnrollmentRepo) ListAdmin(ctx context.Context) ([]models.AdminEnrollmentRow, error) {
	return nil, nil
}

func (m *mockEnrollmentRepo) ListByOffering(ctx context.Context, offeringType models.OfferingType, offeringID string, status models.EnrollmentStatus) ([]models.OfferingEnrollmentRow, error) {
	return nil, nil
}

type mockPlanRepo struct {
	plans        []*models.PaymentPlan
	installments []*models.Installment
	hasPaid      bool
	total        float64
	paid         float64
	noPlan       bool
	swept        int64
	byEnrollment map[string][]models.Installment

	planErr         error
	tx              *mockTxRunner
	writesOutsideTx int
}

func (m *mockPlanRepo) trackWrite() {
	if m.tx != nil && !m.tx.active {
		m.writesOutsideTx++
	}
}

func (m *mockPlanRepo) CreatePlan(ctx context.Context, plan *models.PaymentPlan) error {
	m.trackWrite()
	if m.planErr != nil {
		return m.planErr
	}
	plan.ID = fmt.Sprintf("plan-%d", len(m.plans)+1)
	cp := *plan
	m.plans = append(m.plans, &cp)
	return nil
}

func (m *mockPlanRepo) CreateInstallment(ctx context.Context, installment *models.Installment) error {
	m.trackWrite()
	installment.ID = fmt.Sprintf("inst-%d", len(m.installments)+1)
	cp := *installment
	m.installments = append(m.installments, &cp)
	return nil
}

func (m *mockPlanRepo) HasPaidOrVoucher(ctx context.Context, enrollmentID string) (bool, error) {
	return m.hasPaid, nil
}

func (m *mockPlanRepo) PaidTotal(ctx context.Context, enrollmentID string) (float64, float64, error) {
	if m.noPlan {
		return 0, 0, sql.ErrNoRows
	}
	return m.total, m.paid, nil
}

func (m *mockPlanRepo) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	return m.swept, nil
}

func (m *mockPlanRepo) InstallmentsByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string][]models.Installment, error) {
	return m.byEnrollment, nil
}

type mockCatalogSource struct {
	prices         map[string]float64
	packageCourses map[string][]string
	cycleDates     *models.CycleDates
	cycleErr       error
}

func (m *mockCatalogSource) EffectivePrice(ctx context.Context, offeringType models.OfferingType, offeringID string) (float64, error) {
	return m.prices[string(offeringType)+"|"+offeringID], nil
}

func (m *mockCatalogSource) PackageCourseOfferings(ctx context.Context, packageOfferingID string) ([]string, error) {
	return m.packageCourses[packageOfferingID], nil
}

func (m *mockCatalogSource) CycleDates(ctx context.Context, offeringType models.OfferingType, offeringID string) (*models.CycleDates, error) {
	if m.cycleErr != nil {
		return nil, m.cycleErr
	}
	return m.cycleDates, nil
}

// mockTxRunner tracks transaction scopes; mocks wired with it can tell
// whether a call ran inside one.
type mockTxRunner struct {
	runs   int
	active bool
}

func (m *mockTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.runs++
	wasActive := m.active
	m.active = true
	defer func() { m.active = wasActive }()
	return fn(ctx)
}

func newEnrollmentFixture(repo *mockEnrollmentRepo, plans *mockPlanRepo, catalog *mockCatalogSource) *EnrollmentService {
	return NewEnrollmentService(repo, plans, catalog, &mockTxRunner{}, NewMetricsService(), zap.NewNop())
}

func TestEnrollmentCreateBatch(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	plans := &mockPlanRepo{}
	catalog := &mockCatalogSource{prices: map[string]float64{"course|co-1": 120}}
	svc := newEnrollmentFixture(repo, plans, catalog)

	created, err := svc.CreateBatch(context.Background(), "st-1", []models.EnrollmentItem{
		{Type: models.OfferingTypeCourse, OfferingID: "co-1"},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.Len(t, repo.created, 1)
	enrollment := repo.created[0]
	assert.Equal(t, models.EnrollmentStatusPendiente, enrollment.Status)
	assert.Equal(t, "co-1", *enrollment.CourseOfferingID)
	assert.Nil(t, enrollment.PackageOfferingID)

	require.Len(t, plans.plans, 1)
	assert.Equal(t, 120.0, plans.plans[0].TotalAmount)
	assert.Equal(t, 1, plans.plans[0].Installments)

	require.Len(t, plans.installments, 1)
	inst := plans.installments[0]
	assert.Equal(t, 1, inst.Number)
	assert.Equal(t, models.InstallmentStatusPending, inst.Status)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 7), inst.DueDate, time.Minute)
}

func TestEnrollmentCreateBatchUnknownOfferingPricesZero(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	plans := &mockPlanRepo{}
	svc := newEnrollmentFixture(repo, plans, &mockCatalogSource{})

	_, err := svc.CreateBatch(context.Background(), "st-1", []models.EnrollmentItem{
		{Type: models.OfferingTypePackage, OfferingID: "missing"},
	})
	require.NoError(t, err)
	require.Len(t, plans.plans, 1)
	assert.Equal(t, 0.0, plans.plans[0].TotalAmount)
}

func TestEnrollmentCreateBatchEmpty(t *testing.T) {
	svc := newEnrollmentFixture(&mockEnrollmentRepo{}, &mockPlanRepo{}, &mockCatalogSource{})

	_, err := svc.CreateBatch(context.Background(), "st-1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentCreateBatchCourseConflict(t *testing.T) {
	group := "A"
	repo := &mockEnrollmentRepo{
		activeCourse: map[string]*models.OfferingInfo{
			"st-1|co-1": {ID: "co-1", Name: "Álgebra", GroupLabel: &group},
		},
	}
	plans := &mockPlanRepo{}
	svc := newEnrollmentFixture(repo, plans, &mockCatalogSource{})

	_, err := svc.CreateBatch(context.Background(), "st-1", []models.EnrollmentItem{
		{Type: models.OfferingTypeCourse, OfferingID: "co-1"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Usted ya está matriculado en uno de los cursos seleccionados: Álgebra (Grupo A). Por favor, verifique nuevamente.", appErr.Message)
	assert.Empty(t, repo.created)
	assert.Empty(t, plans.plans)
}

func TestEnrollmentCreateBatchCourseViaPackageConflict(t *testing.T) {
	group := "B"
	repo := &mockEnrollmentRepo{
		viaPackage: map[string]*models.CourseViaPackageConflict{
			"st-1|co-2": {CourseName: "Química", PackageName: "Grupo B", GroupLabel: &group},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{}, &mockCatalogSource{})

	_, err := svc.CreateBatch(context.Background(), "st-1", []models.EnrollmentItem{
		{Type: models.OfferingTypeCourse, OfferingID: "co-2"},
	})
	require.Error(t, err)
	assert.Equal(t, "Usted ya está matriculado en uno de los cursos seleccionados: Química (Grupo B) (incluido en el paquete 'Grupo B'). Por favor, verifique nuevamente.", appErrors.FromError(err).Message)
}

func TestEnrollmentCreateBatchAbortsOnLaterConflict(t *testing.T) {
	// The second item conflicts: the clean first item must not be written.
	repo := &mockEnrollmentRepo{
		activePackage: map[string]*models.OfferingInfo{
			"st-1|po-1": {ID: "po-1", Name: "Grupo A"},
		},
	}
	plans := &mockPlanRepo{}
	svc := newEnrollmentFixture(repo, plans, &mockCatalogSource{})

	_, err := svc.CreateBatch(context.Background(), "st-1", []models.EnrollmentItem{
		{Type: models.OfferingTypeCourse, OfferingID: "co-1"},
		{Type: models.OfferingTypePackage, OfferingID: "po-1"},
	})
	require.Error(t, err)
	assert.Equal(t, "Usted ya está matriculado en el paquete seleccionado: Grupo A. Por favor, verifique nuevamente.", appErrors.FromError(err).Message)
	assert.Empty(t, repo.created)
	assert.Empty(t, plans.plans)
}

func TestEnrollmentCreateBatchPackageCourseConflict(t *testing.T) {
	repo := &mockEnrollmentRepo{
		courseInPkg: map[string]*models.OfferingInfo{
			"st-1|po-1": {ID: "co-3", Name: "Historia"},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{}, &mockCatalogSource{})

	_, err := svc.CreateBatch(context.Background(), "st-1", []models.EnrollmentItem{
		{Type: models.OfferingTypePackage, OfferingID: "po-1"},
	})
	require.Error(t, err)
	assert.Equal(t, "Usted ya está matriculado en uno de los cursos del paquete seleccionado: Historia. Por favor, verifique nuevamente.", appErrors.FromError(err).Message)
}

func TestEnrollmentCancel(t *testing.T) {
	courseID := "co-1"
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", CourseOfferingID: &courseID, Type: models.OfferingTypeCourse, Status: models.EnrollmentStatusPendiente},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{}, &mockCatalogSource{})

	require.NoError(t, svc.Cancel(context.Background(), "st-1", "enr-1"))
	assert.Equal(t, []string{"enr-1"}, repo.deleted)
}

func TestEnrollmentCancelOwnershipReadsAsNotFound(t *testing.T) {
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-2", Status: models.EnrollmentStatusPendiente},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{}, &mockCatalogSource{})

	err := svc.Cancel(context.Background(), "st-1", "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestEnrollmentCancelRequiresPendiente(t *testing.T) {
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", Status: models.EnrollmentStatusAceptado},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{}, &mockCatalogSource{})

	err := svc.Cancel(context.Background(), "st-1", "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentCancelBlockedByPayments(t *testing.T) {
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", Status: models.EnrollmentStatusPendiente},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{hasPaid: true}, &mockCatalogSource{})

	err := svc.Cancel(context.Background(), "st-1", "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestEnrollmentSetStatusAcceptRequiresFullPayment(t *testing.T) {
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", Type: models.OfferingTypeCourse, Status: models.EnrollmentStatusPendiente},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{total: 120, paid: 60}, &mockCatalogSource{})

	_, err := svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusAceptado)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.statusUpdates)
}

func TestEnrollmentSetStatusAcceptWithoutPlanFails(t *testing.T) {
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", Type: models.OfferingTypeCourse, Status: models.EnrollmentStatusPendiente},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{noPlan: true}, &mockCatalogSource{})

	_, err := svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusAceptado)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentSetStatusAcceptPackageCascades(t *testing.T) {
	packageID := "po-1"
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", PackageOfferingID: &packageID, Type: models.OfferingTypePackage, Status: models.EnrollmentStatusPendiente},
		},
		// One cascade row already exists; only the other two get created.
		cascades: map[string]bool{"st-1|co-1|po-1": true},
	}
	catalog := &mockCatalogSource{packageCourses: map[string][]string{"po-1": {"co-1", "co-2", "co-3"}}}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{total: 650, paid: 650}, catalog)

	created, err := svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusAceptado)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, models.EnrollmentStatusAceptado, repo.statusUpdates["enr-1"])

	require.Len(t, repo.created, 2)
	for _, cascade := range repo.created {
		assert.Equal(t, models.EnrollmentStatusAceptado, cascade.Status)
		assert.Equal(t, models.OfferingTypeCourse, cascade.Type)
		assert.Equal(t, "po-1", *cascade.PackageOfferingID)
		assert.NotNil(t, cascade.AcceptedAt)
	}
}

func TestEnrollmentAcceptOnFullPayment(t *testing.T) {
	packageID := "po-1"
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 4, 0)
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", PackageOfferingID: &packageID, Type: models.OfferingTypePackage, Status: models.EnrollmentStatusPendiente},
		},
	}
	catalog := &mockCatalogSource{
		packageCourses: map[string][]string{"po-1": {"co-1"}},
		cycleDates:     &models.CycleDates{StartDate: start, EndDate: end},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{}, catalog)

	dates, err := svc.AcceptOnFullPayment(context.Background(), "enr-1")
	require.NoError(t, err)
	require.NotNil(t, dates)
	assert.Equal(t, start, dates.StartDate)

	assert.Equal(t, models.EnrollmentStatusAceptado, repo.statusUpdates["enr-1"])
	assert.Equal(t, []string{"st-1|po-1"}, repo.acceptedPkgs)
	require.Len(t, repo.created, 1)
}

func TestEnrollmentAcceptOnFullPaymentCycleDatesOptional(t *testing.T) {
	courseID := "co-1"
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", CourseOfferingID: &courseID, Type: models.OfferingTypeCourse, Status: models.EnrollmentStatusPendiente},
		},
	}
	catalog := &mockCatalogSource{cycleErr: errors.New("catalog down")}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{}, catalog)

	dates, err := svc.AcceptOnFullPayment(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Nil(t, dates)
	assert.Equal(t, models.EnrollmentStatusAceptado, repo.statusUpdates["enr-1"])
}

func TestEnrollmentReject(t *testing.T) {
	repo := &mockEnrollmentRepo{
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", Status: models.EnrollmentStatusPendiente},
		},
	}
	svc := newEnrollmentFixture(repo, &mockPlanRepo{}, &mockCatalogSource{})

	require.NoError(t, svc.Reject(context.Background(), "enr-1"))
	assert.Equal(t, models.EnrollmentStatusRechazado, repo.statusUpdates["enr-1"])
}

func TestEnrollmentListByStudentAttachesInstallments(t *testing.T) {
	repo := &mockEnrollmentRepo{
		students: []models.EnrollmentDetail{
			{Enrollment: models.Enrollment{ID: "enr-1"}},
			{Enrollment: models.Enrollment{ID: "enr-2"}},
		},
	}
	plans := &mockPlanRepo{
		byEnrollment: map[string][]models.Installment{
			"enr-1": {{ID: "inst-1", Status: models.InstallmentStatusPending}},
		},
	}
	svc := newEnrollmentFixture(repo, plans, &mockCatalogSource{})

	details, err := svc.ListByStudent(context.Background(), "st-1")
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Len(t, details[0].Installments, 1)
	// Enrollments without installments still serialize as an empty list.
	assert.NotNil(t, details[1].Installments)
	assert.Empty(t, details[1].Installments)
}

func TestEnrollmentListByOfferingValidatesInput(t *testing.T) {
	svc := newEnrollmentFixture(&mockEnrollmentRepo{}, &mockPlanRepo{}, &mockCatalogSource{})

	_, err := svc.ListByOffering(context.Background(), "bundle", "po-1", models.EnrollmentStatusAceptado)
	require.Error(t, err)

	_, err = svc.ListByOffering(context.Background(), models.OfferingTypeCourse, "co-1", "activo")
	require.Error(t, err)
}

func TestEnrollmentCreateBatchWritesInOneTransaction(t *testing.T) {
	tx := &mockTxRunner{}
	repo := &mockEnrollmentRepo{tx: tx}
	plans := &mockPlanRepo{tx: tx}
	catalog := &mockCatalogSource{prices: map[string]float64{"course|co-1": 120, "course|co-2": 150}}
	svc := NewEnrollmentService(repo, plans, catalog, tx, NewMetricsService(), zap.NewNop())

	_, err := svc.CreateBatch(context.Background(), "st-1", []models.EnrollmentItem{
		{Type: models.OfferingTypeCourse, OfferingID: "co-1"},
		{Type: models.OfferingTypeCourse, OfferingID: "co-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tx.runs)
	assert.Zero(t, repo.writesOutsideTx)
	assert.Zero(t, plans.writesOutsideTx)
}

func TestEnrollmentCreateBatchPlanFailureAborts(t *testing.T) {
	tx := &mockTxRunner{}
	repo := &mockEnrollmentRepo{tx: tx}
	plans := &mockPlanRepo{tx: tx, planErr: errors.New("insert failed")}
	svc := NewEnrollmentService(repo, plans, &mockCatalogSource{}, tx, NewMetricsService(), zap.NewNop())

	_, err := svc.CreateBatch(context.Background(), "st-1", []models.EnrollmentItem{
		{Type: models.OfferingTypeCourse, OfferingID: "co-1"},
	})
	require.Error(t, err)
	// The enrollment insert ran inside the same transaction scope the
	// failure aborts, so no plan-less row can survive it.
	assert.Equal(t, 1, tx.runs)
	assert.Zero(t, repo.writesOutsideTx)
	assert.Empty(t, plans.plans)
}

func TestEnrollmentAcceptCascadeSharesTransaction(t *testing.T) {
	packageID := "po-1"
	tx := &mockTxRunner{}
	repo := &mockEnrollmentRepo{
		tx: tx,
		items: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "st-1", PackageOfferingID: &packageID, Type: models.OfferingTypePackage, Status: models.EnrollmentStatusPendiente},
		},
	}
	catalog := &mockCatalogSource{packageCourses: map[string][]string{"po-1": {"co-1", "co-2"}}}
	svc := NewEnrollmentService(repo, &mockPlanRepo{total: 650, paid: 650}, catalog, tx, NewMetricsService(), zap.NewNop())

	created, err := svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusAceptado)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, tx.runs)
	assert.Zero(t, repo.writesOutsideTx)

	_, err = svc.AcceptOnFullPayment(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 2, tx.runs)
	assert.Zero(t, repo.writesOutsideTx)
}
