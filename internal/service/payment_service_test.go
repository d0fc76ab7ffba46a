package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/gateway"
	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type mockTxnRepo struct {
	txns    map[string]*models.Transaction
	nextID  int
	created []string
}

func (m *mockTxnRepo) Create(ctx context.Context, txn *models.Transaction) error {
	if m.txns == nil {
		m.txns = make(map[string]*models.Transaction)
	}
	m.nextID++
	txn.ID = "txn" + string(rune('0'+m.nextID))
	txn.CreatedAt = time.Now().UTC()
	stored := *txn
	m.txns[txn.ID] = &stored
	m.created = append(m.created, txn.ID)
	return nil
}

func (m *mockTxnRepo) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	if txn, ok := m.txns[id]; ok {
		copied := *txn
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTxnRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error) {
	for _, txn := range m.txns {
		if txn.PaymentSessionID != nil && *txn.PaymentSessionID == sessionID {
			copied := *txn
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTxnRepo) SetSessionID(ctx context.Context, id, sessionID string) error {
	if txn, ok := m.txns[id]; ok {
		txn.PaymentSessionID = &sessionID
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockTxnRepo) ExistsCompleted(ctx context.Context, userID, courseID string) (bool, error) {
	for _, txn := range m.txns {
		if txn.UserID == userID && txn.CourseID == courseID && txn.Status == models.TransactionStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTxnRepo) MarkCompleted(ctx context.Context, id string) (bool, error) {
	txn, ok := m.txns[id]
	if !ok || txn.Status != models.TransactionStatusPending {
		return false, nil
	}
	txn.Status = models.TransactionStatusCompleted
	return true, nil
}

func (m *mockTxnRepo) MarkFailed(ctx context.Context, id string) (bool, error) {
	txn, ok := m.txns[id]
	if !ok || txn.Status != models.TransactionStatusPending {
		return false, nil
	}
	txn.Status = models.TransactionStatusFailed
	return true, nil
}

func (m *mockTxnRepo) MarkRefunded(ctx context.Context, id, reason string, refundedAt time.Time) (bool, error) {
	txn, ok := m.txns[id]
	if !ok || txn.Status != models.TransactionStatusCompleted {
		return false, nil
	}
	txn.Status = models.TransactionStatusRefunded
	txn.RefundReason = &reason
	txn.RefundedAt = &refundedAt
	return true, nil
}

func (m *mockTxnRepo) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	var list []models.Transaction
	for _, txn := range m.txns {
		if txn.UserID == filter.UserID {
			list = append(list, *txn)
		}
	}
	return list, len(list), nil
}

type mockPayCourses struct {
	courses map[string]*models.Course
}

func (m *mockPayCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockPayUsers struct {
	users map[string]*models.User
}

func (m *mockPayUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockPayEnrollments struct {
	enrollments map[string]*models.Enrollment // keyed userID+courseID
}

func (m *mockPayEnrollments) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[userID+courseID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnroller struct {
	calls int
	err   error
}

func (m *mockEnroller) Enroll(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &models.Enrollment{ID: "en1", UserID: userID, CourseID: courseID}, nil
}

type mockCheckoutProvider struct {
	sessions      map[string]*gateway.Session
	createErr     error
	refunded      []string
	createdReqs   []gateway.CreateSessionRequest
	sessionStatus string
}

func (m *mockCheckoutProvider) CreateSession(ctx context.Context, req gateway.CreateSessionRequest) (*gateway.Session, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createdReqs = append(m.createdReqs, req)
	session := &gateway.Session{ID: "cs_1", CheckoutURL: "https://pay.example.com/cs_1", Status: gateway.SessionStatusPending, Amount: req.Amount, Currency: req.Currency}
	if m.sessions == nil {
		m.sessions = make(map[string]*gateway.Session)
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *mockCheckoutProvider) GetSession(ctx context.Context, sessionID string) (*gateway.Session, error) {
	if s, ok := m.sessions[sessionID]; ok {
		if m.sessionStatus != "" {
			copied := *s
			copied.Status = m.sessionStatus
			return &copied, nil
		}
		return s, nil
	}
	return nil, errors.New("unknown session")
}

func (m *mockCheckoutProvider) Refund(ctx context.Context, sessionID string, amount float64) error {
	m.refunded = append(m.refunded, sessionID)
	return nil
}

type recordingNotifier struct {
	events []NotificationEvent
}

func (n *recordingNotifier) Send(event NotificationEvent, to Recipient, data map[string]string) {
	n.events = append(n.events, event)
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func newPaymentFixture(price float64) (*PaymentService, *mockTxnRepo, *mockCheckoutProvider, *mockEnroller, *recordingNotifier) {
	txns := &mockTxnRepo{}
	courses := &mockPayCourses{courses: map[string]*models.Course{
		"course1": {ID: "course1", InstructorID: "inst1", Title: "Go from Scratch", Price: price, Currency: "USD", Status: models.CourseStatusPublished},
	}}
	users := &mockPayUsers{users: map[string]*models.User{
		"user1": {ID: "user1", Name: "Ana", Email: "ana@example.com"},
	}}
	enrollments := &mockPayEnrollments{enrollments: map[string]*models.Enrollment{}}
	enroller := &mockEnroller{}
	provider := &mockCheckoutProvider{sessionStatus: gateway.SessionStatusPaid}
	notify := &recordingNotifier{}
	svc := NewPaymentService(txns, courses, users, enrollments, enroller, provider, notify, validator.New(), zap.NewNop())
	return svc, txns, provider, enroller, notify
}

func TestCreateCheckoutFreezesFeeSplit(t *testing.T) {
	svc, txns, provider, _, _ := newPaymentFixture(49.99)

	result, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1", SuccessURL: "https://app.example.com/success"})
	require.NoError(t, err)

	assert.Equal(t, 49.99, result.Transaction.Amount)
	assert.Equal(t, 15.0, result.Transaction.PlatformFee)
	assert.Equal(t, 34.99, result.Transaction.InstructorRevenue)
	assert.Equal(t, models.TransactionStatusPending, result.Transaction.Status)
	assert.Equal(t, "https://pay.example.com/cs_1", result.CheckoutURL)

	stored := txns.txns[result.Transaction.ID]
	require.NotNil(t, stored.PaymentSessionID)
	assert.Equal(t, "cs_1", *stored.PaymentSessionID)

	require.Len(t, provider.createdReqs, 1)
	assert.Equal(t, "https://app.example.com/success?session_id={CHECKOUT_SESSION_ID}", provider.createdReqs[0].SuccessURL)
	assert.Equal(t, result.Transaction.ID, provider.createdReqs[0].Metadata["transaction_id"])
}

func TestCreateCheckoutRejectsFreeCourse(t *testing.T) {
	svc, _, _, _, _ := newPaymentFixture(0)

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFreeCourse.Code, errCode(t, err))
}

func TestCreateCheckoutRejectsDuplicatePurchase(t *testing.T) {
	svc, txns, _, _, _ := newPaymentFixture(20)
	txns.txns = map[string]*models.Transaction{
		"txn0": {ID: "txn0", UserID: "user1", CourseID: "course1", Status: models.TransactionStatusCompleted},
	}

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicatePurchase.Code, errCode(t, err))
}

func TestCreateCheckoutProviderFailureMarksFailed(t *testing.T) {
	svc, txns, provider, _, _ := newPaymentFixture(20)
	provider.createErr = errors.New("provider down")

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentProvider.Code, errCode(t, err))

	require.Len(t, txns.created, 1)
	assert.Equal(t, models.TransactionStatusFailed, txns.txns[txns.created[0]].Status)
}

func TestConfirmPaymentSettlesAndEnrolls(t *testing.T) {
	svc, _, _, enroller, notify := newPaymentFixture(20)

	result, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.NoError(t, err)

	txn, err := svc.ConfirmPayment(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, 1, enroller.calls)
	assert.Contains(t, notify.events, EventPaymentReceipt)
	assert.Equal(t, result.Transaction.ID, txn.ID)
}

func TestConfirmPaymentDuplicateDeliveryIsNoOp(t *testing.T) {
	svc, _, _, enroller, notify := newPaymentFixture(20)

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.NoError(t, err)

	first, err := svc.ConfirmPayment(context.Background(), "cs_1")
	require.NoError(t, err)
	second, err := svc.ConfirmPayment(context.Background(), "cs_1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.TransactionStatusCompleted, second.Status)
	assert.Equal(t, 1, enroller.calls)
	assert.Len(t, notify.events, 1)
}

func TestConfirmPaymentRequiresSettledSession(t *testing.T) {
	svc, _, provider, enroller, _ := newPaymentFixture(20)
	provider.sessionStatus = gateway.SessionStatusPending

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), "cs_1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentNotSettled.Code, errCode(t, err))
	assert.Equal(t, 0, enroller.calls)
}

func TestRefundHappyPath(t *testing.T) {
	svc, txns, provider, _, notify := newPaymentFixture(20)

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.NoError(t, err)
	confirmed, err := svc.ConfirmPayment(context.Background(), "cs_1")
	require.NoError(t, err)

	refunded, err := svc.Refund(context.Background(), confirmed.ID, "user1", RefundRequest{Reason: "not what I expected"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundReason)
	assert.Equal(t, "not what I expected", *refunded.RefundReason)
	assert.Equal(t, []string{"cs_1"}, provider.refunded)
	assert.Contains(t, notify.events, EventRefundProcessed)
	assert.Equal(t, models.TransactionStatusRefunded, txns.txns[confirmed.ID].Status)
}

func TestRefundRejectsExpiredWindow(t *testing.T) {
	svc, txns, _, _, _ := newPaymentFixture(20)

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.NoError(t, err)
	confirmed, err := svc.ConfirmPayment(context.Background(), "cs_1")
	require.NoError(t, err)

	txns.txns[confirmed.ID].CreatedAt = time.Now().UTC().Add(-31 * 24 * time.Hour)

	_, err = svc.Refund(context.Background(), confirmed.ID, "user1", RefundRequest{Reason: "too late"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRefundNotEligible.Code, errCode(t, err))
}

func TestRefundRejectsHighProgress(t *testing.T) {
	svc, _, provider, _, _ := newPaymentFixture(20)

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.NoError(t, err)
	confirmed, err := svc.ConfirmPayment(context.Background(), "cs_1")
	require.NoError(t, err)

	svc.enrollments = &mockPayEnrollments{enrollments: map[string]*models.Enrollment{
		"user1course1": {ID: "en1", UserID: "user1", CourseID: "course1", ProgressPercentage: 45},
	}}

	_, err = svc.Refund(context.Background(), confirmed.ID, "user1", RefundRequest{Reason: "changed my mind"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRefundNotEligible.Code, errCode(t, err))
	assert.Empty(t, provider.refunded)
}

func TestRefundRejectsForeignTransaction(t *testing.T) {
	svc, _, _, _, _ := newPaymentFixture(20)

	_, err := svc.CreateCheckout(context.Background(), "user1", CreateCheckoutRequest{CourseID: "course1"})
	require.NoError(t, err)
	confirmed, err := svc.ConfirmPayment(context.Background(), "cs_1")
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), confirmed.ID, "user2", RefundRequest{Reason: "not mine"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(t, err))
}

func TestRoundingNeverLosesACent(t *testing.T) {
	for _, price := range []float64{10.01, 19.99, 33.33, 99.95} {
		fee := round2(price * models.PlatformFeeRate)
		revenue := round2(price - fee)
		assert.InDelta(t, price, fee+revenue, 0.0001, "price %v", price)
	}
}
