package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/academia-platform/academia-api/internal/models"
	"github.com/academia-platform/academia-api/internal/notifier"
)

type mockSender struct {
	mu     sync.Mutex
	sent   []string
	err    error
	result *notifier.Result
}

func (m *mockSender) Send(ctx context.Context, phone, message string) (*notifier.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, phone+"|"+message)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &notifier.Result{Status: "success"}, nil
}

func (m *mockSender) InitSession(ctx context.Context) (*notifier.Session, error) {
	return &notifier.Session{Status: "starting"}, nil
}

func (m *mockSender) SessionStatus(ctx context.Context) (*notifier.Session, error) {
	return &notifier.Session{Status: "connected", LoggedIn: true}, nil
}

func (m *mockSender) CloseSession(ctx context.Context) error { return nil }

type mockNotificationRepo struct {
	mu      sync.Mutex
	records []*models.Notification
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *notification
	m.records = append(m.records, &cp)
	return nil
}

func (m *mockNotificationRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, 0, len(m.records))
	for _, r := range m.records {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func notificationFixture(t *testing.T, sender *mockSender, repo *mockNotificationRepo) *NotificationService {
	t.Helper()
	svc := NewNotificationService(sender, sender, repo, NewMetricsService(), 1, zap.NewNop())
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

func TestNotifyParentRecordsDelivery(t *testing.T) {
	sender := &mockSender{}
	repo := &mockNotificationRepo{}
	svc := notificationFixture(t, sender, repo)

	svc.NotifyParent("st-1", "+51999888777", "Pago recibido para la matrícula enr-1", models.NotificationOther)

	require.Eventually(t, func() bool { return repo.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	record := repo.records[0]
	assert.Equal(t, models.NotificationSent, record.Status)
	assert.Equal(t, "st-1", record.StudentID)
	assert.Equal(t, models.NotificationOther, record.Type)
	assert.Nil(t, record.Detail)
}

func TestNotifyParentRecordsFailure(t *testing.T) {
	sender := &mockSender{err: errors.New("gateway unreachable")}
	repo := &mockNotificationRepo{}
	svc := notificationFixture(t, sender, repo)

	svc.NotifyParent("st-1", "+51999888777", "mensaje", models.NotificationAbsences)

	require.Eventually(t, func() bool { return repo.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	record := repo.records[0]
	assert.Equal(t, models.NotificationFailed, record.Status)
	require.NotNil(t, record.Detail)
	assert.Equal(t, "gateway unreachable", *record.Detail)
}

func TestNotifyParentGatewayRejection(t *testing.T) {
	sender := &mockSender{result: &notifier.Result{Status: "error", Detail: "invalid number"}}
	repo := &mockNotificationRepo{}
	svc := notificationFixture(t, sender, repo)

	svc.NotifyParent("st-1", "+bad", "mensaje", models.NotificationOther)

	require.Eventually(t, func() bool { return repo.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	record := repo.records[0]
	assert.Equal(t, models.NotificationFailed, record.Status)
	require.NotNil(t, record.Detail)
	assert.Equal(t, "invalid number", *record.Detail)
}

func TestNotifyParentSkipsEmptyPhone(t *testing.T) {
	sender := &mockSender{}
	repo := &mockNotificationRepo{}
	svc := notificationFixture(t, sender, repo)

	svc.NotifyParent("st-1", "", "mensaje", models.NotificationOther)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, repo.count())
	assert.Empty(t, sender.sent)
}

func TestNotificationHistory(t *testing.T) {
	repo := &mockNotificationRepo{records: []*models.Notification{
		{ID: "n-1", StudentID: "st-1", Status: models.NotificationSent},
		{ID: "n-2", StudentID: "st-2", Status: models.NotificationSent},
	}}
	svc := NewNotificationService(&mockSender{}, &mockSender{}, repo, nil, 1, zap.NewNop())

	rows, err := svc.History(context.Background(), "st-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "n-1", rows[0].ID)
}

func TestSessionLifecycle(t *testing.T) {
	svc := NewNotificationService(&mockSender{}, &mockSender{}, &mockNotificationRepo{}, nil, 1, zap.NewNop())

	status, err := svc.SessionStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.LoggedIn)
	assert.Equal(t, "connected", status.Status)

	require.NoError(t, svc.CloseSession(context.Background()))
}
