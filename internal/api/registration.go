package api

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"printdesk/internal/database"
	"printdesk/internal/inventory"
	"printdesk/internal/ratelimit"
	"printdesk/internal/registration"
	"printdesk/internal/validator"
	"printdesk/internal/verification"
)

type sendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) SendCode(c *fiber.Ctx) error {
	var req sendCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Validate(req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": validator.Message(err)})
	}

	if err := h.verification.RequestCode(c.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, verification.ErrEmailAlreadyRegistered):
			return c.Status(400).JSON(fiber.Map{"error": "An account with this email already exists"})
		case errors.Is(err, ratelimit.ErrTooManyAttempts):
			return c.Status(429).JSON(fiber.Map{"error": "Too many attempts, try again later"})
		default:
			h.logger.ErrorContext(c.Context(), "Failed to send verification code", "error", err)
			return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	return c.JSON(fiber.Map{"message": "Verification code sent"})
}

type verifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

func (h *Handler) VerifyCode(c *fiber.Ctx) error {
	var req verifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Validate(req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": validator.Message(err)})
	}

	if err := h.verification.VerifyCode(c.Context(), req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, verification.ErrCodeInvalid):
			return c.Status(400).JSON(fiber.Map{"error": "Invalid verification code"})
		case errors.Is(err, verification.ErrCodeExpired):
			return c.Status(400).JSON(fiber.Map{"error": "Verification code expired, request a new one"})
		case errors.Is(err, ratelimit.ErrTooManyAttempts):
			return c.Status(429).JSON(fiber.Map{"error": "Too many attempts, try again later"})
		default:
			h.logger.ErrorContext(c.Context(), "Failed to verify code", "error", err)
			return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	return c.JSON(fiber.Map{"verified": true})
}

type validatePrintersRequest struct {
	InstitutionID string                   `json:"institution_id" validate:"required,institution_code"`
	Printers      []inventory.PrinterClaim `json:"printers" validate:"required,min=1"`
}

func (h *Handler) ValidatePrinters(c *fiber.Ctx) error {
	var req validatePrintersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Validate(req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": validator.Message(err)})
	}

	results, err := h.matcher.Validate(c.Context(), req.InstitutionID, req.Printers)
	if err != nil {
		if errors.Is(err, inventory.ErrUnknownInstitution) {
			return c.Status(404).JSON(fiber.Map{"error": "Institution not found"})
		}
		h.logger.ErrorContext(c.Context(), "Failed to validate printers", "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{
		"results":       results,
		"matched_count": inventory.MatchedCount(results),
	})
}

type submitForm struct {
	FirstName     string `form:"first_name" validate:"required,max=100"`
	LastName      string `form:"last_name" validate:"required,max=100"`
	Email         string `form:"email" validate:"required,email"`
	Password      string `form:"password" validate:"required,password_strength"`
	Department    string `form:"department" validate:"max=150"`
	InstitutionID string `form:"institution_id" validate:"required,institution_code"`
	EmailVerified string `form:"email_verified"`
	Printers      string `form:"printers" validate:"required"`
}

// Submit accepts the multipart registration form: scalar fields, a JSON
// printers array, and the three identity photos as file parts named
// id_front, id_back and selfie.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var form submitForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Validate(form); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": validator.Message(err)})
	}

	var claims []inventory.PrinterClaim
	if err := json.Unmarshal([]byte(form.Printers), &claims); err != nil || len(claims) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "printers must be a non-empty JSON array"})
	}

	emailVerified, _ := strconv.ParseBool(form.EmailVerified)

	front, err := h.photoUpload(c, "id_front")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "id_front photo is required"})
	}
	defer front.file.Close()
	back, err := h.photoUpload(c, "id_back")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "id_back photo is required"})
	}
	defer back.file.Close()
	selfie, err := h.photoUpload(c, "selfie")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "selfie photo is required"})
	}
	defer selfie.file.Close()

	result, err := h.registration.Submit(c.Context(), registration.SubmitParams{
		FirstName:     strings.TrimSpace(form.FirstName),
		LastName:      strings.TrimSpace(form.LastName),
		Email:         form.Email,
		Password:      form.Password,
		Department:    strings.TrimSpace(form.Department),
		InstitutionID: form.InstitutionID,
		EmailVerified: emailVerified,
		Printers:      claims,
		FrontIDPhoto:  front.upload,
		BackIDPhoto:   back.upload,
		SelfiePhoto:   selfie.upload,
	})
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrEmailNotVerified):
			return c.Status(400).JSON(fiber.Map{"error": "Email has not been verified"})
		case errors.Is(err, registration.ErrEmailAlreadyRegistered):
			return c.Status(400).JSON(fiber.Map{"error": "An account with this email already exists"})
		case errors.Is(err, registration.ErrWeakPassword):
			return c.Status(400).JSON(fiber.Map{"error": "password must be at least 8 characters with upper case, lower case and a digit"})
		case errors.Is(err, registration.ErrNoValidatedPrinters):
			return c.Status(400).JSON(fiber.Map{
				"error":   "No claimed printer matched the institution inventory",
				"results": result.Matches,
			})
		case errors.Is(err, inventory.ErrUnknownInstitution):
			return c.Status(404).JSON(fiber.Map{"error": "Institution not found"})
		case errors.Is(err, ratelimit.ErrTooManyAttempts):
			return c.Status(429).JSON(fiber.Map{"error": "Too many attempts, try again later"})
		default:
			h.logger.ErrorContext(c.Context(), "Failed to submit registration", "error", err)
			return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	return c.JSON(fiber.Map{
		"user_id": result.User.ID,
		"status":  result.User.ApprovalStatus,
		"results": result.Matches,
		"message": "Registration submitted for review",
	})
}

type openedPhoto struct {
	file   multipart.File
	upload registration.PhotoUpload
}

func (h *Handler) photoUpload(c *fiber.Ctx, field string) (openedPhoto, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return openedPhoto{}, err
	}
	file, err := header.Open()
	if err != nil {
		return openedPhoto{}, err
	}
	return openedPhoto{
		file: file,
		upload: registration.PhotoUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
		},
	}, nil
}

// reviewer reads the acting staff member from the token claims the
// authentication middleware stored. Coordinator scoping keys off it.
func reviewer(c *fiber.Ctx) registration.Reviewer {
	role, _ := c.Locals("role").(string)
	return registration.Reviewer{
		ID:   c.Locals("user_id").(uuid.UUID),
		Role: database.UserRole(role),
	}
}

func (h *Handler) ListPending(c *fiber.Ctx) error {
	pending, err := h.registration.ListPending(c.Context(), reviewer(c))
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to list pending registrations", "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}

	rows := make([]fiber.Map, 0, len(pending))
	for _, reg := range pending {
		rows = append(rows, pendingRow(reg))
	}
	return c.JSON(fiber.Map{"registrations": rows})
}

func pendingRow(reg database.PendingRegistration) fiber.Map {
	return fiber.Map{
		"user_id":           reg.UserID,
		"first_name":        reg.FirstName,
		"last_name":         reg.LastName,
		"email":             reg.Email,
		"department":        reg.Department,
		"submitted_at":      reg.CreatedAt,
		"institution_ids":   reg.InstitutionIDs,
		"institution_names": reg.InstitutionNames,
		"printers":          reg.Printers,
	}
}

func (h *Handler) ListHistory(c *fiber.Ctx) error {
	history, err := h.registration.ListHistory(c.Context(), reviewer(c))
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to list registration history", "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}

	rows := make([]fiber.Map, 0, len(history))
	for _, entry := range history {
		rows = append(rows, fiber.Map{
			"user_id":           entry.UserID,
			"email":             entry.Email,
			"first_name":        entry.FirstName,
			"last_name":         entry.LastName,
			"department":        entry.Department,
			"institution_ids":   entry.InstitutionIDs,
			"institution_names": entry.InstitutionNames,
			"printers":          entry.Printers,
			"status":            entry.Status,
			"rejection_reason":  entry.RejectionReason,
			"reviewed_by":       entry.ReviewedBy,
			"reviewed_at":       entry.ReviewedAt,
			"submitted_at":      entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"history": rows})
}

func (h *Handler) Approve(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid user id"})
	}

	user, err := h.registration.Approve(c.Context(), userID, reviewer(c))
	if err != nil {
		if errors.Is(err, database.ErrRegistrationNotPending) {
			return c.Status(404).JSON(fiber.Map{"error": "No pending registration for this user"})
		}
		h.logger.ErrorContext(c.Context(), "Failed to approve registration", "user_id", userID, "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{
		"message": "Registration approved",
		"user": fiber.Map{
			"id":              user.ID,
			"email":           user.Email,
			"approval_status": user.ApprovalStatus,
			"approved_at":     user.ApprovedAt,
		},
	})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) Reject(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid user id"})
	}

	// The reason is optional; an empty body is a valid reject.
	var req rejectRequest
	if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Validate(req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": validator.Message(err)})
	}

	if err := h.registration.Reject(c.Context(), userID, reviewer(c), strings.TrimSpace(req.Reason)); err != nil {
		switch {
		case errors.Is(err, database.ErrRegistrationNotPending):
			return c.Status(404).JSON(fiber.Map{"error": "No pending registration for this user"})
		default:
			h.logger.ErrorContext(c.Context(), "Failed to reject registration", "user_id", userID, "error", err)
			return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
		}
	}

	return c.JSON(fiber.Map{"message": "Registration rejected"})
}
