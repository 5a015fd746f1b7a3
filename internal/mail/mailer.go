package mail

import "context"

// Mailer sends the registration workflow emails. All sends are best-effort:
// callers log and count failures instead of failing the request.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to string, code string) error
	SendRegistrationReceived(ctx context.Context, to string, firstName string) error
	SendCoordinatorAlert(ctx context.Context, to string, requesterName string, requesterEmail string) error
	SendApproval(ctx context.Context, to string, firstName string, printerCount int) error
	SendRejection(ctx context.Context, to string, firstName string, reason string) error
}

// NoopMailer drops every message, for development without an SMTP server.
type NoopMailer struct{}

func (NoopMailer) SendVerificationCode(ctx context.Context, to string, code string) error {
	return nil
}

func (NoopMailer) SendRegistrationReceived(ctx context.Context, to string, firstName string) error {
	return nil
}

func (NoopMailer) SendCoordinatorAlert(ctx context.Context, to string, requesterName string, requesterEmail string) error {
	return nil
}

func (NoopMailer) SendApproval(ctx context.Context, to string, firstName string, printerCount int) error {
	return nil
}

func (NoopMailer) SendRejection(ctx context.Context, to string, firstName string, reason string) error {
	return nil
}
