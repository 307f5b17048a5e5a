// Package notify records in-app notifications and sends best-effort emails.
package notify

import (
	"context"
	"log"
	"time"

	"blupi/api/internal/email"
	"blupi/api/internal/store"
	"blupi/api/internal/util"
)

type notificationStore interface {
	InsertNotification(ctx context.Context, n store.Notification) error
}

// Service fans out notifications. Email delivery is best effort: failures
// are logged and never surfaced to the caller.
type Service struct {
	store notificationStore
	email *email.Service
}

func NewService(st notificationStore, em *email.Service) *Service {
	return &Service{store: st, email: em}
}

// CommentPosted records a notification for each recipient and emails those
// with a known address.
func (s *Service) CommentPosted(ctx context.Context, boardID, boardName, authorName, excerpt, boardURL string, recipients []store.Membership) {
	for _, m := range recipients {
		bid := boardID
		n := store.Notification{
			ID:        util.NewID("ntf"),
			UserID:    m.UserID,
			Type:      "comment",
			Title:     "New comment on " + boardName,
			Body:      authorName + ": " + excerpt,
			BoardID:   &bid,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.InsertNotification(ctx, n); err != nil {
			log.Printf("notify: insert notification for %s: %v", m.UserID, err)
			continue
		}
		if s.email == nil || !s.email.IsConfigured() || m.UserEmail == "" {
			continue
		}
		data := email.CommentData{
			RecipientName: m.UserName,
			AuthorName:    authorName,
			BoardName:     boardName,
			Excerpt:       excerpt,
			BoardURL:      boardURL,
		}
		if err := s.email.SendCommentNotificationEmail(m.UserEmail, data); err != nil {
			log.Printf("notify: email %s: %v", m.UserEmail, err)
		}
	}
}

// ProjectInvite records a notification for the invitee and emails them.
func (s *Service) ProjectInvite(ctx context.Context, inviteeID, inviteeName, inviteeEmail, inviterName, projectID, projectName, role, projectURL string) {
	pid := projectID
	n := store.Notification{
		ID:        util.NewID("ntf"),
		UserID:    inviteeID,
		Type:      "invite",
		Title:     "Invitation to " + projectName,
		Body:      inviterName + " invited you to " + projectName + " as " + role,
		ProjectID: &pid,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		log.Printf("notify: insert notification for %s: %v", inviteeID, err)
		return
	}
	if s.email == nil || !s.email.IsConfigured() || inviteeEmail == "" {
		return
	}
	data := email.ProjectInviteData{
		InviteeName: inviteeName,
		InviterName: inviterName,
		ProjectName: projectName,
		Role:        role,
		ProjectURL:  projectURL,
	}
	if err := s.email.SendProjectInviteEmail(inviteeEmail, data); err != nil {
		log.Printf("notify: email %s: %v", inviteeEmail, err)
	}
}
