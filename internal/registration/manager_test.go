package registration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"printdesk/internal/audit"
	"printdesk/internal/config"
	"printdesk/internal/database"
	"printdesk/internal/inventory"
	"printdesk/internal/mail"
	"printdesk/internal/monitoring"
	"printdesk/internal/registration"
	"printdesk/internal/storage"
	"printdesk/internal/util"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	args := m.Called(email)
	return args.Get(0).(database.User), args.Error(1)
}

func (m *mockStore) ConsumeVerifiedEmail(ctx context.Context, email string) error {
	args := m.Called(email)
	return args.Error(0)
}

func (m *mockStore) CreateUser(ctx context.Context, params database.CreateUserParams) (database.User, error) {
	args := m.Called(params)
	return args.Get(0).(database.User), args.Error(1)
}

func (m *mockStore) UpsertPhotoSet(ctx context.Context, params database.UpsertPhotoSetParams) (database.PhotoSet, error) {
	args := m.Called(params)
	return args.Get(0).(database.PhotoSet), args.Error(1)
}

func (m *mockStore) CreateUserPrinterAssignment(ctx context.Context, params database.CreateUserPrinterAssignmentParams) (database.UserPrinterAssignment, error) {
	args := m.Called(params)
	return args.Get(0).(database.UserPrinterAssignment), args.Error(1)
}

func (m *mockStore) GetInstitutionByID(ctx context.Context, institutionID string) (database.Institution, error) {
	args := m.Called(institutionID)
	return args.Get(0).(database.Institution), args.Error(1)
}

func (m *mockStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	args := m.Called(id)
	return args.Get(0).(database.User), args.Error(1)
}

func (m *mockStore) CreateNotification(ctx context.Context, params database.CreateNotificationParams) (database.Notification, error) {
	args := m.Called(params)
	return args.Get(0).(database.Notification), args.Error(1)
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

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) Validate(ctx context.Context, institutionID string, claims []inventory.PrinterClaim) ([]inventory.MatchResult, error) {
	args := m.Called(institutionID, claims)
	return args.Get(0).([]inventory.MatchResult), args.Error(1)
}

// fakeStorage is an in-memory Storage that remembers stored keys and deletes.
type fakeStorage struct {
	stored  []string
	deleted []string
	failOn  string
}

func (f *fakeStorage) Store(ctx context.Context, userID uuid.UUID, filename string, content io.Reader, contentType string) (storage.StoredObject, error) {
	if filename == f.failOn {
		return storage.StoredObject{}, fmt.Errorf("storage unavailable")
	}
	key := fmt.Sprintf("registrations/%s/%s", userID, filename)
	f.stored = append(f.stored, key)
	return storage.StoredObject{Key: key, URL: "/files/" + key}, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) GetURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return "/files/" + key, nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func newTestManager(t *testing.T, store *mockStore, matcher *mockMatcher, fs *fakeStorage) registration.Manager {
	t.Helper()
	telemetry, err := monitoring.NewOpenTelemetry(config.TelemetryConfig{})
	require.NoError(t, err)
	auditor := audit.NewAuditor(slog.Default(), store)
	return registration.NewManager(slog.Default(), store, matcher, fs, mail.NoopMailer{}, nil, nil, &auditor, telemetry)
}

func photo(name string) registration.PhotoUpload {
	return registration.PhotoUpload{
		Filename:    name,
		ContentType: "image/jpeg",
		Content:     strings.NewReader("jpeg bytes"),
	}
}

func submitParams() registration.SubmitParams {
	return registration.SubmitParams{
		FirstName:     "Ada",
		LastName:      "Vries",
		Email:         "ada@example.com",
		Password:      "Sterk3Wachtwoord",
		Department:    "Radiology",
		InstitutionID: "INST-1",
		EmailVerified: true,
		Printers:      []inventory.PrinterClaim{{SerialNumber: "SN-100", Brand: "HP"}},
		FrontIDPhoto:  photo("front.jpg"),
		BackIDPhoto:   photo("back.jpg"),
		SelfiePhoto:   photo("selfie.jpg"),
	}
}

func TestManager_Submit(t *testing.T) {
	itemID := uuid.New()
	coordinatorID := uuid.New()
	matched := []inventory.MatchResult{{SerialNumber: "SN-100", Brand: "HP", Matched: true, ItemID: util.Some(itemID)}}

	t.Run("client_flag_unset", func(t *testing.T) {
		manager := newTestManager(t, &mockStore{}, &mockMatcher{}, &fakeStorage{})
		params := submitParams()
		params.EmailVerified = false

		_, err := manager.Submit(context.Background(), params)
		assert.ErrorIs(t, err, registration.ErrEmailNotVerified)
	})

	t.Run("missing_server_marker", func(t *testing.T) {
		store := &mockStore{}
		store.On("ConsumeVerifiedEmail", "ada@example.com").Return(database.ErrVerifiedEmailNotFound)
		manager := newTestManager(t, store, &mockMatcher{}, &fakeStorage{})

		_, err := manager.Submit(context.Background(), submitParams())
		assert.ErrorIs(t, err, registration.ErrEmailNotVerified)
		store.AssertExpectations(t)
	})

	t.Run("weak_password", func(t *testing.T) {
		store := &mockStore{}
		store.On("ConsumeVerifiedEmail", "ada@example.com").Return(nil)
		store.On("GetUserByEmail", "ada@example.com").Return(database.User{}, database.ErrUserNotFound)
		manager := newTestManager(t, store, &mockMatcher{}, &fakeStorage{})

		params := submitParams()
		params.Password = "weak"
		_, err := manager.Submit(context.Background(), params)
		assert.ErrorIs(t, err, registration.ErrWeakPassword)
	})

	t.Run("no_matched_printers", func(t *testing.T) {
		store := &mockStore{}
		store.On("ConsumeVerifiedEmail", "ada@example.com").Return(nil)
		store.On("GetUserByEmail", "ada@example.com").Return(database.User{}, database.ErrUserNotFound)
		matcher := &mockMatcher{}
		matcher.On("Validate", "INST-1", mock.Anything).Return([]inventory.MatchResult{
			{SerialNumber: "SN-100", Brand: "HP", Reason: "Not found in institution inventory"},
		}, nil)
		manager := newTestManager(t, store, matcher, &fakeStorage{})

		result, err := manager.Submit(context.Background(), submitParams())
		assert.ErrorIs(t, err, registration.ErrNoValidatedPrinters)
		assert.Len(t, result.Matches, 1)
	})

	t.Run("successful_submission", func(t *testing.T) {
		userID := uuid.New()
		store := &mockStore{}
		store.On("ConsumeVerifiedEmail", "ada@example.com").Return(nil)
		store.On("GetUserByEmail", "ada@example.com").Return(database.User{}, database.ErrUserNotFound)
		store.On("CreateUser", mock.MatchedBy(func(p database.CreateUserParams) bool {
			passwordOK := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("Sterk3Wachtwoord")) == nil
			return p.Email == "ada@example.com" &&
				p.Role == database.UserRoleRequester &&
				p.ApprovalStatus == database.ApprovalStatusPending &&
				p.EmailVerifiedAt.IsSet &&
				passwordOK
		})).Return(database.User{ID: userID, Email: "ada@example.com", FirstName: "Ada", ApprovalStatus: database.ApprovalStatusPending}, nil)
		store.On("UpsertPhotoSet", mock.MatchedBy(func(p database.UpsertPhotoSetParams) bool {
			return p.UserID == userID && p.FrontIDKey != "" && p.BackIDKey != "" && p.SelfieKey != ""
		})).Return(database.PhotoSet{}, nil)
		store.On("CreateUserPrinterAssignment", mock.MatchedBy(func(p database.CreateUserPrinterAssignmentParams) bool {
			return p.UserID == userID && p.InventoryItemID == itemID && p.InstitutionID == "INST-1"
		})).Return(database.UserPrinterAssignment{}, nil)
		store.On("GetInstitutionByID", "INST-1").Return(database.Institution{
			InstitutionID: "INST-1",
			Name:          "City Hospital",
			CoordinatorID: util.Some(coordinatorID),
		}, nil)
		store.On("CreateNotification", mock.MatchedBy(func(p database.CreateNotificationParams) bool {
			return p.UserID == coordinatorID && p.NotifType == "registration_submitted"
		})).Return(database.Notification{}, nil)
		store.On("GetUserByID", coordinatorID).Return(database.User{ID: coordinatorID, Email: "coord@example.com"}, nil)

		matcher := &mockMatcher{}
		matcher.On("Validate", "INST-1", mock.Anything).Return(matched, nil)
		fs := &fakeStorage{}
		manager := newTestManager(t, store, matcher, fs)

		result, err := manager.Submit(context.Background(), submitParams())
		require.NoError(t, err)
		assert.Equal(t, userID, result.User.ID)
		assert.Len(t, fs.stored, 3)
		store.AssertExpectations(t)
	})

	t.Run("photo_storage_failure_cleans_up", func(t *testing.T) {
		userID := uuid.New()
		store := &mockStore{}
		store.On("ConsumeVerifiedEmail", "ada@example.com").Return(nil)
		store.On("GetUserByEmail", "ada@example.com").Return(database.User{}, database.ErrUserNotFound)
		store.On("CreateUser", mock.Anything).Return(database.User{ID: userID}, nil)

		matcher := &mockMatcher{}
		matcher.On("Validate", "INST-1", mock.Anything).Return(matched, nil)
		fs := &fakeStorage{failOn: "selfie.jpg"}
		manager := newTestManager(t, store, matcher, fs)

		_, err := manager.Submit(context.Background(), submitParams())
		require.Error(t, err)
		// front and back were stored, then removed again
		assert.Len(t, fs.deleted, 2)
		store.AssertNotCalled(t, "UpsertPhotoSet", mock.Anything)
	})
}

func TestManager_ListPending(t *testing.T) {
	t.Run("coordinator_sees_own_institutions_only", func(t *testing.T) {
		coordinatorID := uuid.New()
		store := &mockStore{}
		store.On("ListPendingRegistrations", database.ListPendingRegistrationsParams{
			CoordinatorID: util.Some(coordinatorID),
		}).Return([]database.PendingRegistration{}, nil)
		manager := newTestManager(t, store, &mockMatcher{}, &fakeStorage{})

		_, err := manager.ListPending(context.Background(), registration.Reviewer{
			ID:   coordinatorID,
			Role: database.UserRoleCoordinator,
		})
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("admin_unscoped", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListPendingRegistrations", database.ListPendingRegistrationsParams{
			CoordinatorID: util.None[uuid.UUID](),
		}).Return([]database.PendingRegistration{}, nil)
		manager := newTestManager(t, store, &mockMatcher{}, &fakeStorage{})

		_, err := manager.ListPending(context.Background(), registration.Reviewer{
			ID:   uuid.New(),
			Role: database.UserRoleAdmin,
		})
		require.NoError(t, err)
		store.AssertExpectations(t)
	})
}

func TestManager_ListHistory(t *testing.T) {
	coordinatorID := uuid.New()
	store := &mockStore{}
	store.On("ListRegistrationHistory", database.ListRegistrationHistoryParams{
		CoordinatorID: util.Some(coordinatorID),
	}).Return([]database.RegistrationHistoryEntry{}, nil)
	manager := newTestManager(t, store, &mockMatcher{}, &fakeStorage{})

	_, err := manager.ListHistory(context.Background(), registration.Reviewer{
		ID:   coordinatorID,
		Role: database.UserRoleCoordinator,
	})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestManager_Approve(t *testing.T) {
	userID := uuid.New()
	reviewerID := uuid.New()
	coordinator := registration.Reviewer{ID: reviewerID, Role: database.UserRoleCoordinator}

	t.Run("not_pending", func(t *testing.T) {
		store := &mockStore{}
		store.On("ApproveRegistration", database.ApproveRegistrationParams{
			UserID:        userID,
			ReviewerID:    reviewerID,
			CoordinatorID: util.Some(reviewerID),
		}).Return(database.ApproveRegistrationResult{}, database.ErrRegistrationNotPending)
		manager := newTestManager(t, store, &mockMatcher{}, &fakeStorage{})

		_, err := manager.Approve(context.Background(), userID, coordinator)
		assert.ErrorIs(t, err, database.ErrRegistrationNotPending)
	})

	t.Run("approved_with_photo_cleanup", func(t *testing.T) {
		store := &mockStore{}
		store.On("ApproveRegistration", mock.Anything).Return(database.ApproveRegistrationResult{
			User:         database.User{ID: userID, Email: "ada@example.com", FirstName: "Ada", ApprovalStatus: database.ApprovalStatusApproved},
			PrinterCount: 2,
			Photos: util.Some(database.PhotoSet{
				UserID:     userID,
				FrontIDKey: "k1", BackIDKey: "k2", SelfieKey: "k3",
			}),
		}, nil)
		store.On("CreateNotification", mock.MatchedBy(func(p database.CreateNotificationParams) bool {
			return p.UserID == userID && p.NotifType == "registration_approved"
		})).Return(database.Notification{}, nil)
		store.On("CreateAuditLogEvent", mock.MatchedBy(func(p database.CreateAuditLogEventParams) bool {
			return p.ActorID == reviewerID && p.EventType == string(audit.EventTypeRegistrationApproved)
		})).Return(database.AuditLogEvent{}, nil)

		fs := &fakeStorage{}
		manager := newTestManager(t, store, &mockMatcher{}, fs)

		user, err := manager.Approve(context.Background(), userID, coordinator)
		require.NoError(t, err)
		assert.Equal(t, database.ApprovalStatusApproved, user.ApprovalStatus)
		assert.ElementsMatch(t, []string{"k1", "k2", "k3"}, fs.deleted)
		store.AssertExpectations(t)
	})
}

func TestManager_Reject(t *testing.T) {
	userID := uuid.New()
	reviewerID := uuid.New()
	coordinator := registration.Reviewer{ID: reviewerID, Role: database.UserRoleCoordinator}

	t.Run("rejected_with_history_and_cleanup", func(t *testing.T) {
		store := &mockStore{}
		store.On("RejectRegistration", database.RejectRegistrationParams{
			UserID:        userID,
			ReviewerID:    reviewerID,
			Reason:        "ID photos unreadable",
			CoordinatorID: util.Some(reviewerID),
		}).Return(database.RejectRegistrationResult{
			User:   database.User{ID: userID, Email: "ada@example.com", FirstName: "Ada"},
			Photos: util.Some(database.PhotoSet{UserID: userID, FrontIDKey: "k1", BackIDKey: "k2", SelfieKey: "k3"}),
		}, nil)
		store.On("CreateAuditLogEvent", mock.MatchedBy(func(p database.CreateAuditLogEventParams) bool {
			return p.ActorID == reviewerID && p.EventType == string(audit.EventTypeRegistrationRejected)
		})).Return(database.AuditLogEvent{}, nil)

		fs := &fakeStorage{}
		manager := newTestManager(t, store, &mockMatcher{}, fs)

		err := manager.Reject(context.Background(), userID, coordinator, "ID photos unreadable")
		require.NoError(t, err)
		assert.Len(t, fs.deleted, 3)
		store.AssertExpectations(t)
	})

	t.Run("reason_may_be_empty", func(t *testing.T) {
		store := &mockStore{}
		store.On("RejectRegistration", database.RejectRegistrationParams{
			UserID:        userID,
			ReviewerID:    reviewerID,
			Reason:        "",
			CoordinatorID: util.Some(reviewerID),
		}).Return(database.RejectRegistrationResult{
			User:   database.User{ID: userID, Email: "ada@example.com", FirstName: "Ada"},
			Photos: util.None[database.PhotoSet](),
		}, nil)
		store.On("CreateAuditLogEvent", mock.Anything).Return(database.AuditLogEvent{}, nil)

		manager := newTestManager(t, store, &mockMatcher{}, &fakeStorage{})

		err := manager.Reject(context.Background(), userID, coordinator, "")
		require.NoError(t, err)
		store.AssertExpectations(t)
	})
}
