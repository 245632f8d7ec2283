package models

import "time"

// ImageSet holds the public URLs of one image in three sizes.
type ImageSet struct {
	ID int64  `json:"id"`
	Sm string `json:"sm"`
	Md string `json:"md"`
	Lg string `json:"lg"`
}

// URLs returns the three URLs, small first.
func (s ImageSet) URLs() []string { return []string{s.Sm, s.Md, s.Lg} }

// Organization is an event organizer, owned 1:1 by a user.
type Organization struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	OrgName     string    `json:"orgName"`
	OrgURL      string    `json:"orgUrl"`
	Email       string    `json:"email"`
	Description string    `json:"description"`
	IsApproved  bool      `json:"isApproved"`
	ImgURL      ImageSet  `json:"imgUrl"`
	ListID      *int64    `json:"-"` // Brevo list id, created lazily
	CreatedAt   time.Time `json:"createdAt"`
}

// OrgSummary is the organization as embedded in users and larps.
type OrgSummary struct {
	ID         int64     `json:"id"`
	OrgName    string    `json:"orgName"`
	Username   string    `json:"username"`
	IsApproved bool      `json:"isApproved"`
	ImgURL     *ImageSet `json:"imgUrl,omitempty"`
}

// Summary returns the embedded form of o.
func (o *Organization) Summary() OrgSummary {
	img := o.ImgURL
	return OrgSummary{ID: o.ID, OrgName: o.OrgName, Username: o.Username, IsApproved: o.IsApproved, ImgURL: &img}
}

// OrgDetail is the GET /orgs/:id view.
type OrgDetail struct {
	Organization
	Larps            []Larp `json:"larps"`
	FollowerCount    int    `json:"followerCount"`
	IsFollowedByUser bool   `json:"isFollowedByUser"`
}

// OrgForCreate is the body for POST /orgs.
type OrgForCreate struct {
	OrgName     string `json:"orgName" binding:"required,max=100"`
	OrgURL      string `json:"orgUrl" binding:"omitempty,url"`
	Email       string `json:"email" binding:"required,email"`
	Description string `json:"description" binding:"max=5000"`
}

// OrgForUpdate is the body for PATCH /orgs/:id. Nil fields are left unchanged.
type OrgForUpdate struct {
	OrgName     *string `json:"orgName" binding:"omitempty,min=1,max=100"`
	OrgURL      *string `json:"orgUrl" binding:"omitempty,url"`
	Email       *string `json:"email" binding:"omitempty,email"`
	Description *string `json:"description" binding:"omitempty,max=5000"`
}

// Follow is a user's subscription to an organization.
type Follow struct {
	UserID int64 `json:"userId"`
	OrgID  int64 `json:"orgId"`
	Emails bool  `json:"emails"`
}

// Follower is a follow joined with the following user's name.
type Follower struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Emails   bool   `json:"emails"`
}
