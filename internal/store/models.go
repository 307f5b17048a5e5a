package store

import (
	"time"

	"blupi/api/internal/board"
)

type User struct {
	ID                    string     `json:"id"`
	DisplayName           string     `json:"displayName"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	IsEmailVerified       bool       `json:"isEmailVerified"`
	VerificationToken     string     `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Organization is the tenant boundary. Every project, board, and comment
// row carries its organization id.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Membership links a user to an organization. Exactly one membership per
// user has Active set; organization-scoped requests resolve through it.
type Membership struct {
	OrganizationID string    `json:"organizationId"`
	UserID         string    `json:"userId"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	// Joined for member listings
	UserName  string `json:"userName,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
}

type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	Color          string    `json:"color"`
	Status         string    `json:"status"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type ProjectMember struct {
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	InvitedBy string    `json:"invitedBy"`
	CreatedAt time.Time `json:"createdAt"`
	// Joined for member listings
	UserName  string `json:"userName,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
}

type Board struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organizationId"`
	ProjectID      *string       `json:"projectId"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Status         string        `json:"status"`
	Content        board.Content `json:"content"`
	IsPublic       bool          `json:"isPublic"`
	PublicRole     string        `json:"publicRole"`
	ShareToken     string        `json:"shareToken,omitempty"`
	CreatedBy      string        `json:"createdBy"`
	UpdatedBy      string        `json:"updatedBy"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

type Comment struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	BoardID        string    `json:"boardId"`
	BlockID        *string   `json:"blockId"`
	Body           string    `json:"body"`
	AuthorID       string    `json:"authorId,omitempty"`
	AuthorName     string    `json:"authorName"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	BoardID   *string    `json:"boardId"`
	ProjectID *string    `json:"projectId"`
	ReadAt    *time.Time `json:"readAt"`
	CreatedAt time.Time  `json:"createdAt"`
}
