package models

import "time"

// User is a platform account.
type User struct {
	ID                   int64     `json:"id"`
	Username             string    `json:"username"`
	Password             string    `json:"-"`
	Email                string    `json:"email"`
	FirstName            string    `json:"firstName"`
	LastName             string    `json:"lastName"`
	IsAdmin              bool      `json:"isAdmin"`
	NewsletterSubscribed bool      `json:"-"`
	NewsletterRemoteID   *int64    `json:"-"` // Brevo contact id, assigned on first subscribe
	CreatedAt            time.Time `json:"createdAt"`
}

// PublicUser is User without credentials or remote ids, plus the owned organization.
type PublicUser struct {
	ID           int64       `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	FirstName    string      `json:"firstName"`
	LastName     string      `json:"lastName"`
	IsAdmin      bool        `json:"isAdmin"`
	Subscribed   bool        `json:"subscribed"`
	CreatedAt    time.Time   `json:"createdAt"`
	Organization *OrgSummary `json:"organization"`
}

// ToPublic converts User to PublicUser. org may be nil.
func (u *User) ToPublic(org *Organization) PublicUser {
	pu := PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		IsAdmin:    u.IsAdmin,
		Subscribed: u.NewsletterSubscribed,
		CreatedAt:  u.CreatedAt,
	}
	if org != nil {
		s := org.Summary()
		pu.Organization = &s
	}
	return pu
}

// UserForCreate is the body for POST /auth/register.
type UserForCreate struct {
	Username   string `json:"username" binding:"required,min=3,max=30"`
	Password   string `json:"password" binding:"required,min=8,max=72,password"`
	Email      string `json:"email" binding:"required,email"`
	FirstName  string `json:"firstName" binding:"max=100"`
	LastName   string `json:"lastName" binding:"max=100"`
	Subscribed bool   `json:"subscribed"`
	// IsAdmin is only set by trusted callers such as the seed command.
	IsAdmin bool `json:"-"`
}

// UserForUpdate is a partial update; nil fields are left unchanged.
type UserForUpdate struct {
	Password   *string `json:"password" binding:"omitempty,min=8,max=72,password"`
	Email      *string `json:"email" binding:"omitempty,email"`
	FirstName  *string `json:"firstName" binding:"omitempty,max=100"`
	LastName   *string `json:"lastName" binding:"omitempty,max=100"`
	Subscribed *bool   `json:"subscribed"`
	IsAdmin    *bool   `json:"isAdmin"`
}

// Empty reports whether no field is set.
func (u UserForUpdate) Empty() bool {
	return u.Password == nil && u.Email == nil && u.FirstName == nil &&
		u.LastName == nil && u.Subscribed == nil && u.IsAdmin == nil
}

// FollowedOrg is one entry of GET /users/:username/follows.
type FollowedOrg struct {
	ID      int64  `json:"id"`
	OrgName string `json:"orgName"`
	Emails  bool   `json:"emails"`
}
