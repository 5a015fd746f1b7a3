package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"printdesk/internal/api"
	"printdesk/internal/audit"
	"printdesk/internal/auth"
	"printdesk/internal/config"
	"printdesk/internal/database"
	"printdesk/internal/inventory"
	"printdesk/internal/mail"
	"printdesk/internal/monitoring"
	"printdesk/internal/notifications"
	"printdesk/internal/registration"
	"printdesk/internal/storage"
	"printdesk/internal/util"
	"printdesk/internal/validator"
	"printdesk/internal/verification"
)

// mockStore backs every manager in the handler under test.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	args := m.Called(email)
	return args.Get(0).(database.User), args.Error(1)
}

func (m *mockStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	args := m.Called(id)
	return args.Get(0).(database.User), args.Error(1)
}

func (m *mockStore) CreateUser(ctx context.Context, params database.CreateUserParams) (database.User, error) {
	args := m.Called(params)
	return args.Get(0).(database.User), args.Error(1)
}

func (m *mockStore) CreateVerificationToken(ctx context.Context, params database.CreateVerificationTokenParams) (database.VerificationToken, error) {
	args := m.Called(params)
	return args.Get(0).(database.VerificationToken), args.Error(1)
}

func (m *mockStore) GetVerificationToken(ctx context.Context, params database.GetVerificationTokenParams) (database.VerificationToken, error) {
	args := m.Called(params)
	return args.Get(0).(database.VerificationToken), args.Error(1)
}

func (m *mockStore) DeleteVerificationTokenByID(ctx context.Context, id uuid.UUID) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *mockStore) UpsertVerifiedEmail(ctx context.Context, params database.UpsertVerifiedEmailParams) (database.VerifiedEmail, error) {
	args := m.Called(params)
	return args.Get(0).(database.VerifiedEmail), args.Error(1)
}

func (m *mockStore) ConsumeVerifiedEmail(ctx context.Context, email string) error {
	args := m.Called(email)
	return args.Error(0)
}

func (m *mockStore) GetInstitutionByID(ctx context.Context, institutionID string) (database.Institution, error) {
	args := m.Called(institutionID)
	return args.Get(0).(database.Institution), args.Error(1)
}

func (m *mockStore) FindInstitutionPrinter(ctx context.Context, params database.FindInstitutionPrinterParams) (database.InventoryItem, error) {
	args := m.Called(params)
	return args.Get(0).(database.InventoryItem), args.Error(1)
}

func (m *mockStore) UpsertPhotoSet(ctx context.Context, params database.UpsertPhotoSetParams) (database.PhotoSet, error) {
	args := m.Called(params)
	return args.Get(0).(database.PhotoSet), args.Error(1)
}

func (m *mockStore) CreateUserPrinterAssignment(ctx context.Context, params database.CreateUserPrinterAssignmentParams) (database.UserPrinterAssignment, error) {
	args := m.Called(params)
	return args.Get(0).(database.UserPrinterAssignment), args.Error(1)
}

func (m *mockStore) CreateNotification(ctx context.Context, params database.CreateNotificationParams) (database.Notification, error) {
	args := m.Called(params)
	return args.Get(0).(database.Notification), args.Error(1)
}

func (m *mockStore) ListNotifications(ctx context.Context, params database.ListNotificationsParams) ([]database.Notification, error) {
	args := m.Called(params)
	return args.Get(0).([]database.Notification), args.Error(1)
}

func (m *mockStore) MarkNotificationRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	args := m.Called(id, userID)
	return args.Error(0)
}

func (m *mockStore) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *mockStore) ListPendingRegistrations(ctx context.Context, params database.ListPendingRegistrationsParams) ([]database.PendingRegistration, error) {
	args := m.Called(params)
	return args.Get(0).([]database.PendingRegistration), args.Error(1)
}

func (m *mockStore) ListRegistrationHistory(ctx context.Context, params database.ListRegistrationHistoryParams) ([]database.RegistrationHistoryEntry, error) {
	args := m.Called(params)
	return args.Get(0).([]database.RegistrationHistoryEntry), args.Error(1)
}

func (m *mockStore) ApproveRegistration(ctx context.Context, params database.ApproveRegistrationParams) (database.ApproveRegistrationResult, error) {
	args := m.Called(params)
	return args.Get(0).(database.ApproveRegistrationResult), args.Error(1)
}

func (m *mockStore) RejectRegistration(ctx context.Context, params database.RejectRegistrationParams) (database.RejectRegistrationResult, error) {
	args := m.Called(params)
	return args.Get(0).(database.RejectRegistrationResult), args.Error(1)
}

func (m *mockStore) CreateAuditLogEvent(ctx context.Context, params database.CreateAuditLogEventParams) (database.AuditLogEvent, error) {
	args := m.Called(params)
	return args.Get(0).(database.AuditLogEvent), args.Error(1)
}

func (m *mockStore) ListAuditLogEvents(ctx context.Context, params database.ListAuditLogEventsParams) ([]database.AuditLogEvent, error) {
	args := m.Called(params)
	return args.Get(0).([]database.AuditLogEvent), args.Error(1)
}

// fakeStorage keeps photo objects in memory so the submit flow runs end to
// end without a bucket.
type fakeStorage struct {
	stored []string
}

func (f *fakeStorage) Store(ctx context.Context, userID uuid.UUID, filename string, content io.Reader, contentType string) (storage.StoredObject, error) {
	key := "registrations/" + userID.String() + "/" + filename
	f.stored = append(f.stored, key)
	return storage.StoredObject{Key: key, URL: "/files/" + key}, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeStorage) GetURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return "/files/" + key, nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) { return true, nil }

type testApp struct {
	app    *fiber.App
	store  *mockStore
	tokens *auth.TokenManager
}

func newTestApp(t *testing.T) testApp {
	t.Helper()

	store := &mockStore{}
	logger := slog.Default()
	telemetry, err := monitoring.NewOpenTelemetry(config.TelemetryConfig{})
	require.NoError(t, err)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	auditor := audit.NewAuditor(logger, store)
	authService := auth.NewService(logger, store, tokens, nil, &auditor)
	verificationManager := verification.NewManager(logger, store, mail.NoopMailer{}, nil, telemetry, 24*time.Hour, 6)
	matcher := inventory.NewMatcher(logger, store)
	registrationManager := registration.NewManager(logger, store, &matcher, &fakeStorage{}, mail.NoopMailer{}, nil, nil, &auditor, telemetry)
	notifier := notifications.NewNotifier(logger, store)

	handler := api.NewHandler(logger, &database.Database{}, validator.New(), tokens, &authService, &verificationManager, &matcher, &registrationManager, &notifier)

	cfg := &config.Config{}
	cfg.Storage.Provider = "s3"
	app := api.NewApp(cfg, &handler)

	return testApp{app: app, store: store, tokens: tokens}
}

func (ta testApp) request(t *testing.T, method, path, body, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestSendCode(t *testing.T) {
	t.Run("invalid_email", func(t *testing.T) {
		ta := newTestApp(t)
		resp := ta.request(t, "POST", "/api/registration/send-code", `{"email":"not-an-email"}`, "")
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("registered_email_refused", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("GetUserByEmail", "taken@example.com").Return(database.User{ID: uuid.New()}, nil)

		resp := ta.request(t, "POST", "/api/registration/send-code", `{"email":"taken@example.com"}`, "")
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("issues_code", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("GetUserByEmail", "new@example.com").Return(database.User{}, database.ErrUserNotFound)
		ta.store.On("CreateVerificationToken", mock.Anything).Return(database.VerificationToken{}, nil)

		resp := ta.request(t, "POST", "/api/registration/send-code", `{"email":"new@example.com"}`, "")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "Verification code sent", decode(t, resp)["message"])
	})
}

func TestCoordinatorGuard(t *testing.T) {
	ta := newTestApp(t)

	t.Run("missing_token", func(t *testing.T) {
		resp := ta.request(t, "GET", "/api/registration/pending", "", "")
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("requester_forbidden", func(t *testing.T) {
		token, err := ta.tokens.Issue(uuid.New(), "req@example.com", "requester")
		require.NoError(t, err)
		resp := ta.request(t, "GET", "/api/registration/pending", "", token)
		assert.Equal(t, 403, resp.StatusCode)
	})

	t.Run("coordinator_allowed", func(t *testing.T) {
		ta := newTestApp(t)
		coordID := uuid.New()
		ta.store.On("ListPendingRegistrations", database.ListPendingRegistrationsParams{
			CoordinatorID: util.Some(coordID),
		}).Return([]database.PendingRegistration{
			{UserID: uuid.New(), FirstName: "Ada", Email: "ada@example.com"},
		}, nil)

		token, err := ta.tokens.Issue(coordID, "coord@example.com", "coordinator")
		require.NoError(t, err)
		resp := ta.request(t, "GET", "/api/registration/pending", "", token)
		assert.Equal(t, 200, resp.StatusCode)

		payload := decode(t, resp)
		regs := payload["registrations"].([]any)
		require.Len(t, regs, 1)
		ta.store.AssertExpectations(t)
	})
}

func TestPendingQueueScoping(t *testing.T) {
	// Two coordinators must not share a queue: each request reaches the store
	// scoped to the caller's own ID.
	t.Run("each_coordinator_queries_own_scope", func(t *testing.T) {
		ta := newTestApp(t)
		coordA := uuid.New()
		coordB := uuid.New()
		ta.store.On("ListPendingRegistrations", database.ListPendingRegistrationsParams{
			CoordinatorID: util.Some(coordA),
		}).Return([]database.PendingRegistration{
			{UserID: uuid.New(), Email: "ada@example.com", InstitutionIDs: []string{"INST-1"}},
		}, nil).Once()
		ta.store.On("ListPendingRegistrations", database.ListPendingRegistrationsParams{
			CoordinatorID: util.Some(coordB),
		}).Return([]database.PendingRegistration{}, nil).Once()

		tokenA, err := ta.tokens.Issue(coordA, "a@example.com", "coordinator")
		require.NoError(t, err)
		tokenB, err := ta.tokens.Issue(coordB, "b@example.com", "coordinator")
		require.NoError(t, err)

		respA := ta.request(t, "GET", "/api/registration/pending", "", tokenA)
		assert.Equal(t, 200, respA.StatusCode)
		require.Len(t, decode(t, respA)["registrations"].([]any), 1)

		respB := ta.request(t, "GET", "/api/registration/pending", "", tokenB)
		assert.Equal(t, 200, respB.StatusCode)
		assert.Len(t, decode(t, respB)["registrations"].([]any), 0)

		ta.store.AssertExpectations(t)
	})

	t.Run("admin_unscoped", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("ListPendingRegistrations", database.ListPendingRegistrationsParams{
			CoordinatorID: util.None[uuid.UUID](),
		}).Return([]database.PendingRegistration{}, nil)

		token, err := ta.tokens.Issue(uuid.New(), "admin@example.com", "admin")
		require.NoError(t, err)
		resp := ta.request(t, "GET", "/api/registration/pending", "", token)
		assert.Equal(t, 200, resp.StatusCode)
		ta.store.AssertExpectations(t)
	})

	t.Run("history_scoped_too", func(t *testing.T) {
		ta := newTestApp(t)
		coordID := uuid.New()
		ta.store.On("ListRegistrationHistory", database.ListRegistrationHistoryParams{
			CoordinatorID: util.Some(coordID),
		}).Return([]database.RegistrationHistoryEntry{}, nil)

		token, err := ta.tokens.Issue(coordID, "coord@example.com", "coordinator")
		require.NoError(t, err)
		resp := ta.request(t, "GET", "/api/registration/history", "", token)
		assert.Equal(t, 200, resp.StatusCode)
		ta.store.AssertExpectations(t)
	})
}

func TestApprove(t *testing.T) {
	reviewerID := uuid.New()
	userID := uuid.New()

	t.Run("not_pending", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("ApproveRegistration", mock.Anything).Return(database.ApproveRegistrationResult{}, database.ErrRegistrationNotPending)

		token, err := ta.tokens.Issue(reviewerID, "coord@example.com", "coordinator")
		require.NoError(t, err)
		resp := ta.request(t, "POST", "/api/registration/"+userID.String()+"/approve", "", token)
		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("approved", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("ApproveRegistration", database.ApproveRegistrationParams{
			UserID:        userID,
			ReviewerID:    reviewerID,
			CoordinatorID: util.Some(reviewerID),
		}).
			Return(database.ApproveRegistrationResult{
				User: database.User{ID: userID, Email: "ada@example.com", ApprovalStatus: database.ApprovalStatusApproved},
			}, nil)
		ta.store.On("CreateNotification", mock.Anything).Return(database.Notification{}, nil)
		ta.store.On("CreateAuditLogEvent", mock.Anything).Return(database.AuditLogEvent{}, nil)

		token, err := ta.tokens.Issue(reviewerID, "coord@example.com", "coordinator")
		require.NoError(t, err)
		resp := ta.request(t, "POST", "/api/registration/"+userID.String()+"/approve", "", token)
		assert.Equal(t, 200, resp.StatusCode)
		ta.store.AssertExpectations(t)
	})
}

func TestReject(t *testing.T) {
	reviewerID := uuid.New()
	userID := uuid.New()

	t.Run("without_reason", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("RejectRegistration", database.RejectRegistrationParams{
			UserID:        userID,
			ReviewerID:    reviewerID,
			Reason:        "",
			CoordinatorID: util.Some(reviewerID),
		}).Return(database.RejectRegistrationResult{
			User:   database.User{ID: userID, Email: "ada@example.com"},
			Photos: util.None[database.PhotoSet](),
		}, nil)
		ta.store.On("CreateAuditLogEvent", mock.Anything).Return(database.AuditLogEvent{}, nil)

		token, err := ta.tokens.Issue(reviewerID, "coord@example.com", "coordinator")
		require.NoError(t, err)
		resp := ta.request(t, "POST", "/api/registration/"+userID.String()+"/reject", `{}`, token)
		assert.Equal(t, 200, resp.StatusCode)
		ta.store.AssertExpectations(t)
	})

	t.Run("rejected", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("RejectRegistration", database.RejectRegistrationParams{
			UserID:        userID,
			ReviewerID:    reviewerID,
			Reason:        "Photos unreadable",
			CoordinatorID: util.Some(reviewerID),
		}).Return(database.RejectRegistrationResult{
			User:   database.User{ID: userID, Email: "ada@example.com"},
			Photos: util.None[database.PhotoSet](),
		}, nil)
		ta.store.On("CreateAuditLogEvent", mock.Anything).Return(database.AuditLogEvent{}, nil)

		token, err := ta.tokens.Issue(reviewerID, "coord@example.com", "coordinator")
		require.NoError(t, err)
		resp := ta.request(t, "POST", "/api/registration/"+userID.String()+"/reject", `{"reason":"Photos unreadable"}`, token)
		assert.Equal(t, 200, resp.StatusCode)
		ta.store.AssertExpectations(t)
	})
}

func submitBody(t *testing.T, email string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fields := map[string]string{
		"first_name":     "Ada",
		"last_name":      "Vries",
		"email":          email,
		"password":       "Sterk3Wachtwoord",
		"department":     "Radiology",
		"institution_id": "INST-1",
		"email_verified": "true",
		"printers":       `[{"serial_number":"SN-100","brand":"HP"}]`,
	}
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	for _, part := range []string{"id_front", "id_back", "selfie"} {
		fw, err := w.CreateFormFile(part, part+".jpg")
		require.NoError(t, err)
		_, err = fw.Write([]byte("jpeg bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func (ta testApp) submit(t *testing.T, email string) *http.Response {
	t.Helper()
	body, contentType := submitBody(t, email)
	req := httptest.NewRequest("POST", "/api/registration/submit", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := ta.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func TestSubmit(t *testing.T) {
	t.Run("unverified_email", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("ConsumeVerifiedEmail", "ada@example.com").Return(database.ErrVerifiedEmailNotFound)

		resp := ta.submit(t, "ada@example.com")
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("duplicate_email", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("ConsumeVerifiedEmail", "ada@example.com").Return(nil)
		ta.store.On("GetUserByEmail", "ada@example.com").Return(database.User{ID: uuid.New()}, nil)

		resp := ta.submit(t, "ada@example.com")
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("no_matching_printer", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("ConsumeVerifiedEmail", "ada@example.com").Return(nil)
		ta.store.On("GetUserByEmail", "ada@example.com").Return(database.User{}, database.ErrUserNotFound)
		ta.store.On("GetInstitutionByID", "INST-1").Return(database.Institution{InstitutionID: "INST-1"}, nil)
		ta.store.On("FindInstitutionPrinter", mock.Anything).Return(database.InventoryItem{}, database.ErrInventoryItemNotFound)

		resp := ta.submit(t, "ada@example.com")
		assert.Equal(t, 400, resp.StatusCode)
		payload := decode(t, resp)
		require.Len(t, payload["results"].([]any), 1)
	})

	t.Run("created", func(t *testing.T) {
		userID := uuid.New()
		itemID := uuid.New()
		ta := newTestApp(t)
		ta.store.On("ConsumeVerifiedEmail", "ada@example.com").Return(nil)
		ta.store.On("GetUserByEmail", "ada@example.com").Return(database.User{}, database.ErrUserNotFound)
		ta.store.On("GetInstitutionByID", "INST-1").Return(database.Institution{InstitutionID: "INST-1", Name: "City Hospital"}, nil)
		ta.store.On("FindInstitutionPrinter", mock.Anything).Return(database.InventoryItem{ID: itemID, Model: "LaserJet"}, nil)
		ta.store.On("CreateUser", mock.Anything).Return(database.User{
			ID:             userID,
			Email:          "ada@example.com",
			FirstName:      "Ada",
			ApprovalStatus: database.ApprovalStatusPending,
		}, nil)
		ta.store.On("UpsertPhotoSet", mock.Anything).Return(database.PhotoSet{}, nil)
		ta.store.On("CreateUserPrinterAssignment", mock.Anything).Return(database.UserPrinterAssignment{}, nil)

		resp := ta.submit(t, "ada@example.com")
		assert.Equal(t, 200, resp.StatusCode)

		payload := decode(t, resp)
		assert.Equal(t, userID.String(), payload["user_id"])
		assert.Equal(t, "pending", payload["status"])
		ta.store.AssertExpectations(t)
	})
}

func TestLogin(t *testing.T) {
	t.Run("invalid_credentials", func(t *testing.T) {
		ta := newTestApp(t)
		ta.store.On("GetUserByEmail", "nobody@example.com").Return(database.User{}, database.ErrUserNotFound)

		resp := ta.request(t, "POST", "/api/auth/login", `{"email":"nobody@example.com","password":"Whatever1"}`, "")
		assert.Equal(t, 401, resp.StatusCode)
	})
}

func TestValidatePrinters(t *testing.T) {
	ta := newTestApp(t)
	ta.store.On("GetInstitutionByID", "INST-1").Return(database.Institution{InstitutionID: "INST-1"}, nil)
	ta.store.On("FindInstitutionPrinter", mock.Anything).Return(database.InventoryItem{ID: uuid.New(), Model: "LaserJet"}, nil)

	resp := ta.request(t, "POST", "/api/registration/validate-printers",
		`{"institution_id":"INST-1","printers":[{"serial_number":"SN-100","brand":"HP"}]}`, "")
	assert.Equal(t, 200, resp.StatusCode)

	payload := decode(t, resp)
	assert.Equal(t, float64(1), payload["matched_count"])
}
