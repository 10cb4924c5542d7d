// internal/notify/notifier.go
package notify

import (
	"context"
	"fmt"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages. Implementations must be safe for concurrent
// use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// CredentialsMessage builds the mail handing a new librarian their
// institutional login.
func CredentialsMessage(to, name, email, password string) Message {
	return Message{
		To:      to,
		Subject: "Your AnyBook librarian account",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour librarian account is ready.\n\nLogin email: %s\nPassword: %s\n\nPlease change the password after your first login.\n",
			name, email, password),
	}
}

// PasswordResetMessage builds the mail carrying a reset link.
func PasswordResetMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Reset your AnyBook password",
		Body:    fmt.Sprintf("A password reset was requested for this address.\n\nReset link: %s\n\nIf you did not request this, ignore this mail.\n", link),
	}
}

// VerificationMessage builds the mail carrying an address-verification link.
func VerificationMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Verify your AnyBook email",
		Body:    fmt.Sprintf("Welcome to AnyBook!\n\nPlease verify your email address: %s\n", link),
	}
}
