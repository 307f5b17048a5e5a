package notify

import (
	"context"
	"errors"
	"testing"

	"blupi/api/internal/store"
)

type fakeNotificationStore struct {
	inserted []store.Notification
	err      error
}

func (f *fakeNotificationStore) InsertNotification(ctx context.Context, n store.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, n)
	return nil
}

func TestCommentPostedRecordsPerRecipient(t *testing.T) {
	fs := &fakeNotificationStore{}
	s := NewService(fs, nil)

	recipients := []store.Membership{
		{UserID: "usr_1", UserName: "Ada", UserEmail: "ada@example.com"},
		{UserID: "usr_2", UserName: "Grace"},
	}
	s.CommentPosted(context.Background(), "brd_1", "Sign-up Flow", "Linus", "looks good", "https://app/board/brd_1", recipients)

	if len(fs.inserted) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(fs.inserted))
	}
	n := fs.inserted[0]
	if n.UserID != "usr_1" || n.Type != "comment" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.BoardID == nil || *n.BoardID != "brd_1" {
		t.Fatal("expected board id on notification")
	}
}

func TestInsertFailureIsSwallowed(t *testing.T) {
	fs := &fakeNotificationStore{err: errors.New("db down")}
	s := NewService(fs, nil)
	s.ProjectInvite(context.Background(), "usr_1", "Ada", "", "Linus", "prj_1", "Onboarding", "editor", "https://app/project/prj_1")
	// no panic, no inserted rows
	if len(fs.inserted) != 0 {
		t.Fatalf("expected no rows, got %d", len(fs.inserted))
	}
}
