package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"printdesk/internal/audit"
	"printdesk/internal/database"
	"printdesk/internal/events"
	"printdesk/internal/inventory"
	"printdesk/internal/mail"
	"printdesk/internal/monitoring"
	"printdesk/internal/ratelimit"
	"printdesk/internal/storage"
	"printdesk/internal/util"
	"printdesk/internal/verification"
)

var (
	ErrEmailNotVerified       = errors.New("email not verified")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrNoValidatedPrinters    = errors.New("no printers matched institution inventory")
	ErrWeakPassword           = errors.New("password does not meet strength requirements")
)

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
	ConsumeVerifiedEmail(ctx context.Context, email string) error
	CreateUser(ctx context.Context, params database.CreateUserParams) (database.User, error)
	UpsertPhotoSet(ctx context.Context, params database.UpsertPhotoSetParams) (database.PhotoSet, error)
	CreateUserPrinterAssignment(ctx context.Context, params database.CreateUserPrinterAssignmentParams) (database.UserPrinterAssignment, error)
	GetInstitutionByID(ctx context.Context, institutionID string) (database.Institution, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
	CreateNotification(ctx context.Context, params database.CreateNotificationParams) (database.Notification, error)
	ListPendingRegistrations(ctx context.Context, params database.ListPendingRegistrationsParams) ([]database.PendingRegistration, error)
	ListRegistrationHistory(ctx context.Context, params database.ListRegistrationHistoryParams) ([]database.RegistrationHistoryEntry, error)
	ApproveRegistration(ctx context.Context, params database.ApproveRegistrationParams) (database.ApproveRegistrationResult, error)
	RejectRegistration(ctx context.Context, params database.RejectRegistrationParams) (database.RejectRegistrationResult, error)
}

// PrinterMatcher validates printer claims against an institution's assigned
// inventory.
type PrinterMatcher interface {
	Validate(ctx context.Context, institutionID string, claims []inventory.PrinterClaim) ([]inventory.MatchResult, error)
}

// Reviewer is the staff member acting on the review queue. Coordinators only
// see and resolve registrants assigned to institutions they administer;
// admins are unscoped.
type Reviewer struct {
	ID   uuid.UUID
	Role database.UserRole
}

func (r Reviewer) scope() util.Optional[uuid.UUID] {
	if r.Role == database.UserRoleAdmin {
		return util.None[uuid.UUID]()
	}
	return util.Some(r.ID)
}

type Manager struct {
	logger    *slog.Logger
	store     Store
	matcher   PrinterMatcher
	storage   storage.Storage
	mailer    mail.Mailer
	producer  *events.Producer
	limiter   *ratelimit.RateLimiter
	auditor   *audit.Auditor
	telemetry monitoring.Telemetry
}

func NewManager(logger *slog.Logger, store Store, matcher PrinterMatcher, fileStorage storage.Storage, mailer mail.Mailer, producer *events.Producer, limiter *ratelimit.RateLimiter, auditor *audit.Auditor, telemetry monitoring.Telemetry) Manager {
	return Manager{
		logger:    logger,
		store:     store,
		matcher:   matcher,
		storage:   fileStorage,
		mailer:    mailer,
		producer:  producer,
		limiter:   limiter,
		auditor:   auditor,
		telemetry: telemetry,
	}
}

// PhotoUpload is one identity photo as received from the client.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

type SubmitParams struct {
	FirstName     string
	LastName      string
	Email         string
	Password      string
	Department    string
	InstitutionID string
	EmailVerified bool
	Printers      []inventory.PrinterClaim
	FrontIDPhoto  PhotoUpload
	BackIDPhoto   PhotoUpload
	SelfiePhoto   PhotoUpload
}

type SubmitResult struct {
	User    database.User
	Matches []inventory.MatchResult
}

// Submit creates a pending requester account. The client-side verified flag
// is only a fast fail; the authoritative check is consuming the server-side
// verified marker, which makes a second submit with the same verification
// impossible. At least one claimed printer has to match the institution's
// assigned inventory. Photo storage failures fail the whole submission;
// notification and email failures do not.
func (m *Manager) Submit(ctx context.Context, params SubmitParams) (SubmitResult, error) {
	var result SubmitResult
	email := verification.NormalizeEmail(params.Email)

	if !params.EmailVerified {
		return result, ErrEmailNotVerified
	}

	if err := m.limiter.CheckSubmit(ctx, email); err != nil {
		return result, err
	}

	if err := m.store.ConsumeVerifiedEmail(ctx, email); err != nil {
		if errors.Is(err, database.ErrVerifiedEmailNotFound) {
			return result, ErrEmailNotVerified
		}
		return result, fmt.Errorf("registration: failed to consume verified email: %w", err)
	}

	if _, err := m.store.GetUserByEmail(ctx, email); err == nil {
		return result, ErrEmailAlreadyRegistered
	} else if !errors.Is(err, database.ErrUserNotFound) {
		return result, fmt.Errorf("registration: failed to check existing user: %w", err)
	}

	if err := validatePasswordStrength(params.Password); err != nil {
		return result, err
	}

	matches, err := m.matcher.Validate(ctx, params.InstitutionID, params.Printers)
	if err != nil {
		return result, err
	}
	result.Matches = matches
	if inventory.MatchedCount(matches) == 0 {
		return result, ErrNoValidatedPrinters
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return result, fmt.Errorf("registration: failed to hash password: %w", err)
	}

	user, err := m.store.CreateUser(ctx, database.CreateUserParams{
		FirstName:       params.FirstName,
		LastName:        params.LastName,
		Email:           email,
		PasswordHash:    string(hash),
		Role:            database.UserRoleRequester,
		ApprovalStatus:  database.ApprovalStatusPending,
		EmailVerifiedAt: util.Some(time.Now().UTC()),
		Department:      params.Department,
	})
	if err != nil {
		m.telemetry.RecordRegistrationSubmitted(ctx, false)
		return result, fmt.Errorf("registration: failed to create user: %w", err)
	}
	result.User = user

	photos, err := m.storePhotos(ctx, user.ID, params)
	if err != nil {
		m.telemetry.RecordRegistrationSubmitted(ctx, false)
		return result, err
	}

	if _, err := m.store.UpsertPhotoSet(ctx, photos); err != nil {
		m.telemetry.RecordRegistrationSubmitted(ctx, false)
		return result, fmt.Errorf("registration: failed to save photo records: %w", err)
	}

	for _, match := range matches {
		if !match.Matched {
			continue
		}
		if _, err := m.store.CreateUserPrinterAssignment(ctx, database.CreateUserPrinterAssignmentParams{
			UserID:          user.ID,
			InventoryItemID: match.ItemID.Val,
			InstitutionID:   params.InstitutionID,
			Department:      params.Department,
		}); err != nil {
			m.telemetry.RecordRegistrationSubmitted(ctx, false)
			return result, fmt.Errorf("registration: failed to record printer assignment: %w", err)
		}
	}

	m.notifyCoordinator(ctx, user, params.InstitutionID)

	if err := m.mailer.SendRegistrationReceived(ctx, user.Email, user.FirstName); err != nil {
		m.logger.ErrorContext(ctx, "Failed to send registration received email", "user_id", user.ID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "registration_received_email")
	}

	if err := m.producer.Publish(ctx, events.RegistrationEvent{
		Type:       events.TypeRegistrationSubmitted,
		UserID:     user.ID,
		Email:      user.Email,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish registration submitted event", "user_id", user.ID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "event_publish")
	}

	m.telemetry.RecordRegistrationSubmitted(ctx, true)
	return result, nil
}

// storePhotos uploads the three identity photos. On a partial failure the
// already stored objects are removed again so no orphans pile up.
func (m *Manager) storePhotos(ctx context.Context, userID uuid.UUID, params SubmitParams) (database.UpsertPhotoSetParams, error) {
	photos := database.UpsertPhotoSetParams{UserID: userID}

	uploads := []struct {
		photo PhotoUpload
		url   *string
		key   *string
	}{
		{params.FrontIDPhoto, &photos.FrontIDPhoto, &photos.FrontIDKey},
		{params.BackIDPhoto, &photos.BackIDPhoto, &photos.BackIDKey},
		{params.SelfiePhoto, &photos.SelfiePhoto, &photos.SelfieKey},
	}

	var stored []string
	for _, u := range uploads {
		obj, err := m.storage.Store(ctx, userID, u.photo.Filename, u.photo.Content, u.photo.ContentType)
		if err != nil {
			for _, key := range stored {
				if delErr := m.storage.Delete(ctx, key); delErr != nil {
					m.logger.ErrorContext(ctx, "Failed to clean up stored photo", "key", key, "error", delErr)
					m.telemetry.RecordBestEffortFailure(ctx, "photo_cleanup")
				}
			}
			return photos, fmt.Errorf("registration: failed to store photo %s: %w", u.photo.Filename, err)
		}
		*u.url = obj.URL
		*u.key = obj.Key
		stored = append(stored, obj.Key)
	}

	return photos, nil
}

// notifyCoordinator leaves an in-app notification and an email for the
// institution's coordinator, when one is assigned. Best-effort.
func (m *Manager) notifyCoordinator(ctx context.Context, user database.User, institutionID string) {
	institution, err := m.store.GetInstitutionByID(ctx, institutionID)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load institution for coordinator notification", "institution_id", institutionID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "coordinator_notification")
		return
	}
	if !institution.CoordinatorID.IsSet {
		return
	}

	requesterName := user.FirstName + " " + user.LastName
	if _, err := m.store.CreateNotification(ctx, database.CreateNotificationParams{
		UserID:      institution.CoordinatorID.Val,
		NotifType:   "registration_submitted",
		Title:       "New registration awaiting review",
		Message:     fmt.Sprintf("%s (%s) submitted a registration for %s.", requesterName, user.Email, institution.Name),
		ReferenceID: util.Some(user.ID.String()),
	}); err != nil {
		m.logger.ErrorContext(ctx, "Failed to create coordinator notification", "coordinator_id", institution.CoordinatorID.Val, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "coordinator_notification")
	}

	coordinator, err := m.store.GetUserByID(ctx, institution.CoordinatorID.Val)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load coordinator for alert email", "coordinator_id", institution.CoordinatorID.Val, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "coordinator_alert_email")
		return
	}
	if err := m.mailer.SendCoordinatorAlert(ctx, coordinator.Email, requesterName, user.Email); err != nil {
		m.logger.ErrorContext(ctx, "Failed to send coordinator alert email", "coordinator_id", coordinator.ID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "coordinator_alert_email")
	}
}

// ListPending returns the reviewer's queue, newest first. A coordinator who
// administers no institution gets an empty list.
func (m *Manager) ListPending(ctx context.Context, reviewer Reviewer) ([]database.PendingRegistration, error) {
	return m.store.ListPendingRegistrations(ctx, database.ListPendingRegistrationsParams{
		CoordinatorID: reviewer.scope(),
	})
}

// ListHistory returns the reviewer's resolved registrations, approved and
// rejected both.
func (m *Manager) ListHistory(ctx context.Context, reviewer Reviewer) ([]database.RegistrationHistoryEntry, error) {
	return m.store.ListRegistrationHistory(ctx, database.ListRegistrationHistoryParams{
		CoordinatorID: reviewer.scope(),
	})
}

// Approve resolves a pending registration to an active account. The state
// transition commits first; photo object deletion, the approval email, the
// in-app notification and the event publish are all best-effort afterwards.
func (m *Manager) Approve(ctx context.Context, userID uuid.UUID, reviewer Reviewer) (database.User, error) {
	result, err := m.store.ApproveRegistration(ctx, database.ApproveRegistrationParams{
		UserID:        userID,
		ReviewerID:    reviewer.ID,
		CoordinatorID: reviewer.scope(),
	})
	if err != nil {
		return database.User{}, err
	}

	m.deletePhotoObjects(ctx, result.Photos)

	if err := m.mailer.SendApproval(ctx, result.User.Email, result.User.FirstName, result.PrinterCount); err != nil {
		m.logger.ErrorContext(ctx, "Failed to send approval email", "user_id", userID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "approval_email")
	}

	if _, err := m.store.CreateNotification(ctx, database.CreateNotificationParams{
		UserID:    result.User.ID,
		NotifType: "registration_approved",
		Title:     "Registration approved",
		Message:   fmt.Sprintf("Your account is active with %d assigned printer(s).", result.PrinterCount),
	}); err != nil {
		m.logger.ErrorContext(ctx, "Failed to create approval notification", "user_id", userID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "approval_notification")
	}

	if err := m.producer.Publish(ctx, events.RegistrationEvent{
		Type:       events.TypeRegistrationApproved,
		UserID:     result.User.ID,
		Email:      result.User.Email,
		ReviewerID: reviewer.ID.String(),
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish registration approved event", "user_id", userID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "event_publish")
	}

	if err := m.auditor.LogEvent(ctx, audit.LogEventParams{
		ActorID: reviewer.ID,
		Type:    audit.EventTypeRegistrationApproved,
		Data:    map[string]any{"user_id": result.User.ID.String(), "email": result.User.Email},
	}); err != nil {
		m.logger.ErrorContext(ctx, "Failed to record approval audit event", "user_id", userID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "audit_event")
	}

	m.telemetry.RecordRegistrationResolved(ctx, "approved")
	return result.User, nil
}

// Reject resolves a pending registration by removing the account, preserving
// a history row. The reason is optional; when given it is stored and included
// in the rejection email.
func (m *Manager) Reject(ctx context.Context, userID uuid.UUID, reviewer Reviewer, reason string) error {
	result, err := m.store.RejectRegistration(ctx, database.RejectRegistrationParams{
		UserID:        userID,
		ReviewerID:    reviewer.ID,
		Reason:        reason,
		CoordinatorID: reviewer.scope(),
	})
	if err != nil {
		return err
	}

	m.deletePhotoObjects(ctx, result.Photos)

	if err := m.mailer.SendRejection(ctx, result.User.Email, result.User.FirstName, reason); err != nil {
		m.logger.ErrorContext(ctx, "Failed to send rejection email", "user_id", userID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "rejection_email")
	}

	if err := m.producer.Publish(ctx, events.RegistrationEvent{
		Type:       events.TypeRegistrationRejected,
		UserID:     result.User.ID,
		Email:      result.User.Email,
		ReviewerID: reviewer.ID.String(),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish registration rejected event", "user_id", userID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "event_publish")
	}

	if err := m.auditor.LogEvent(ctx, audit.LogEventParams{
		ActorID: reviewer.ID,
		Type:    audit.EventTypeRegistrationRejected,
		Data:    map[string]any{"user_id": result.User.ID.String(), "email": result.User.Email, "reason": reason},
	}); err != nil {
		m.logger.ErrorContext(ctx, "Failed to record rejection audit event", "user_id", userID, "error", err)
		m.telemetry.RecordBestEffortFailure(ctx, "audit_event")
	}

	m.telemetry.RecordRegistrationResolved(ctx, "rejected")
	return nil
}

func (m *Manager) deletePhotoObjects(ctx context.Context, photos util.Optional[database.PhotoSet]) {
	if !photos.IsSet {
		return
	}
	for _, key := range photos.Val.Keys() {
		if err := m.storage.Delete(ctx, key); err != nil {
			m.logger.ErrorContext(ctx, "Failed to delete photo object", "key", key, "error", err)
			m.telemetry.RecordBestEffortFailure(ctx, "photo_cleanup")
		}
	}
}

func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var hasUpper, hasLower, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}
