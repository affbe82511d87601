package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"counselsoc.org/internal/obs"
)

// ResetSender delivers password reset and setup links out of band. The
// production implementation is an email provider; development logs the token.
type ResetSender interface {
	SendReset(ctx context.Context, email, token string) error
	SendSetup(ctx context.Context, email, token string) error
}

// LogSender writes the token to the structured log instead of sending mail.
// Never enable outside development.
type LogSender struct{}

func (LogSender) SendReset(_ context.Context, email, token string) error {
	logDelivery("password_reset", email, token)
	return nil
}

func (LogSender) SendSetup(_ context.Context, email, token string) error {
	logDelivery("password_setup", email, token)
	return nil
}

func logDelivery(kind, email, token string) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "delivery",
		"kind":  kind,
		"email": email,
		"token": token,
	}
	if data, err := json.Marshal(entry); err == nil {
		obs.Logger().Println(string(data))
	}
}
