package models

import (
	"time"

	"github.com/google/uuid"
)

// Newsletter is a platform-wide (OrgID nil) or organization newsletter.
// SentAt nil means draft; once set the record is immutable.
type Newsletter struct {
	ID        int64      `json:"id"`
	OrgID     *int64     `json:"orgId"`
	Subject   string     `json:"subject"`
	Text      string     `json:"text"`
	ForceSend *bool      `json:"forceSend,omitempty"` // nil in organization-scoped output
	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt"`
}

// IsSent reports whether the newsletter has been sent.
func (n *Newsletter) IsSent() bool { return n.SentAt != nil }

// Forced reports whether the newsletter bypasses subscription preferences.
func (n *Newsletter) Forced() bool { return n.ForceSend != nil && *n.ForceSend }

// NewsletterForCreate is the body for creating a newsletter.
type NewsletterForCreate struct {
	Subject   string `json:"subject" binding:"required,max=200"`
	Text      string `json:"text" binding:"required"`
	ForceSend bool   `json:"forceSend"`
}

// NewsletterForUpdate is the body for updating a draft.
type NewsletterForUpdate struct {
	Subject string `json:"subject" binding:"required,max=200"`
	Text    string `json:"text" binding:"required"`
}

// TestSendRequest is the body for sending a draft to test addresses.
type TestSendRequest struct {
	Emails []string `json:"emails" binding:"required,min=1,max=20,dive,email"`
}

// NewsletterView is the public, rendered form of a sent newsletter.
type NewsletterView struct {
	ID      int64     `json:"id"`
	Subject string    `json:"subject"`
	HTML    string    `json:"html"`
	SentAt  time.Time `json:"sentAt"`
}

// SendResult reports the outcome of a send attempt. Sent reports whether the newsletter
// is now marked sent; it is false only when nothing was delivered and it is still a draft.
// Delivered is less than Recipients after a partial delivery.
type SendResult struct {
	Newsletter *Newsletter `json:"newsletter"`
	Sent       bool        `json:"sent"`
	Recipients int         `json:"recipients"`
	Delivered  int         `json:"delivered"`
}

// PasswordResetRequest is an outstanding password reset.
type PasswordResetRequest struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
