package mailing

import (
	"context"
	"fmt"
	"html"
)

// Sender delivers transactional email. *Client implements it.
type Sender interface {
	SendEmail(ctx context.Context, msg Email) error
}

// ResetMailer sends password reset links.
type ResetMailer struct {
	sender Sender
	from   Address
}

// NewResetMailer creates a ResetMailer sending as from.
func NewResetMailer(sender Sender, from Address) *ResetMailer {
	return &ResetMailer{sender: sender, from: from}
}

// SendPasswordReset emails link to email.
func (m *ResetMailer) SendPasswordReset(ctx context.Context, email, username, link string) error {
	body := fmt.Sprintf(`<p>Hello %s,</p>
<p>Someone requested a password reset for your LARPCal account. The link below is valid for a few minutes.</p>
<p><a href="%s">Reset your password</a></p>
<p>If this was not you, ignore this email.</p>`, html.EscapeString(username), html.EscapeString(link))

	return m.sender.SendEmail(ctx, Email{
		Sender:  m.from,
		Subject: "LARPCal password reset",
		HTML:    body,
		To:      []string{email},
		Tags:    []string{"password-reset"},
	})
}
