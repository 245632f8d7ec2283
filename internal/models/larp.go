package models

import (
	"time"
)

// TicketStatus is the availability of tickets for a larp.
type TicketStatus string

const (
	TicketAvailable TicketStatus = "AVAILABLE"
	TicketLimited   TicketStatus = "LIMITED"
	TicketSoldOut   TicketStatus = "SOLD_OUT"
	TicketSoon      TicketStatus = "SOON"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketAvailable, TicketLimited, TicketSoldOut, TicketSoon:
		return true
	}
	return false
}

// Larp is a live-action role-play event.
type Larp struct {
	ID           int64        `json:"id"`
	OrgID        int64        `json:"orgId"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
	AllDay       bool         `json:"allDay"`
	City         string       `json:"city"`
	Country      string       `json:"country"`
	Language     string       `json:"language"`
	TicketStatus TicketStatus `json:"ticketStatus"`
	EventURL     string       `json:"eventUrl"`
	IsPublished  bool         `json:"isPublished"`
	IsFeatured   bool         `json:"isFeatured"`
	Tags         []string     `json:"tags"`
	ImgURL       ImageSet     `json:"imgUrl"`
	Organization *OrgSummary  `json:"organization,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// OwnerUsername returns the username owning the larp's organization, or "".
func (l *Larp) OwnerUsername() string {
	if l.Organization == nil {
		return ""
	}
	return l.Organization.Username
}

// LarpForCreate is the body for POST /events.
type LarpForCreate struct {
	OrgID        int64        `json:"orgId" binding:"required,gt=0"`
	Title        string       `json:"title" binding:"required,max=200"`
	Description  string       `json:"description" binding:"max=10000"`
	Start        time.Time    `json:"start" binding:"required"`
	End          time.Time    `json:"end" binding:"required"`
	AllDay       bool         `json:"allDay"`
	City         string       `json:"city" binding:"max=100"`
	Country      string       `json:"country" binding:"max=100"`
	Language     string       `json:"language" binding:"max=100"`
	TicketStatus TicketStatus `json:"ticketStatus" binding:"omitempty,oneof=AVAILABLE LIMITED SOLD_OUT SOON"`
	EventURL     string       `json:"eventUrl" binding:"omitempty,url"`
	Tags         []string     `json:"tags" binding:"max=20,dive,min=1,max=50"`
}

// LarpForUpdate is the body for PUT /events/:id.
type LarpForUpdate struct {
	Title        string       `json:"title" binding:"required,max=200"`
	Description  string       `json:"description" binding:"max=10000"`
	Start        time.Time    `json:"start" binding:"required"`
	End          time.Time    `json:"end" binding:"required"`
	AllDay       bool         `json:"allDay"`
	City         string       `json:"city" binding:"max=100"`
	Country      string       `json:"country" binding:"max=100"`
	Language     string       `json:"language" binding:"max=100"`
	TicketStatus TicketStatus `json:"ticketStatus" binding:"omitempty,oneof=AVAILABLE LIMITED SOLD_OUT SOON"`
	EventURL     string       `json:"eventUrl" binding:"omitempty,url"`
	Tags         []string     `json:"tags" binding:"max=20,dive,min=1,max=50"`
	IsPublished  *bool        `json:"isPublished"`
	IsFeatured   *bool        `json:"isFeatured"`
}

// LarpQuery filters GET /events. Zero fields do not filter.
type LarpQuery struct {
	Title        string         `json:"title,omitempty"`
	City         string         `json:"city,omitempty"`
	Country      string         `json:"country,omitempty"`
	Language     string         `json:"language,omitempty"`
	OrgID        int64          `json:"orgId,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	TicketStatus []TicketStatus `json:"ticketStatus,omitempty"`
	IsPublished  *bool          `json:"isPublished,omitempty"`
	IsFeatured   *bool          `json:"isFeatured,omitempty"`
	StartAfter   *time.Time     `json:"startAfter,omitempty"`
	StartBefore  *time.Time     `json:"startBefore,omitempty"`
	EndAfter     *time.Time     `json:"endAfter,omitempty"`
	EndBefore    *time.Time     `json:"endBefore,omitempty"`
	CreatedAfter *time.Time     `json:"createdAfter,omitempty"`
}

// Matches reports whether l passes every filter in q. Title matching is case-insensitive.
// Stores that cannot push filters down to SQL use it.
func (q LarpQuery) Matches(l *Larp) bool {
	if q.Title != "" && !containsFold(l.Title, q.Title) {
		return false
	}
	if q.City != "" && !equalFold(l.City, q.City) {
		return false
	}
	if q.Country != "" && !equalFold(l.Country, q.Country) {
		return false
	}
	if q.Language != "" && !equalFold(l.Language, q.Language) {
		return false
	}
	if q.OrgID != 0 && l.OrgID != q.OrgID {
		return false
	}
	if len(q.Tags) > 0 && !anyOf(l.Tags, q.Tags) {
		return false
	}
	if len(q.TicketStatus) > 0 {
		found := false
		for _, s := range q.TicketStatus {
			if s == l.TicketStatus {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.IsPublished != nil && l.IsPublished != *q.IsPublished {
		return false
	}
	if q.IsFeatured != nil && l.IsFeatured != *q.IsFeatured {
		return false
	}
	if q.StartAfter != nil && l.Start.Before(*q.StartAfter) {
		return false
	}
	if q.StartBefore != nil && l.Start.After(*q.StartBefore) {
		return false
	}
	if q.EndAfter != nil && l.End.Before(*q.EndAfter) {
		return false
	}
	if q.EndBefore != nil && l.End.After(*q.EndBefore) {
		return false
	}
	if q.CreatedAfter != nil && l.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	return true
}
