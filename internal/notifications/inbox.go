package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
)

// Inbox is what a signed-in user reads their notifications through.
type Inbox interface {
	List(ctx context.Context, q InboxQuery) (*Page, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type InboxQuery struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// Page is one keyset page, newest first. Cursor is empty on the last page.
type Page struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

var errUserRequired = pkgerrors.New(pkgerrors.CodeValidation, "user id required")

type inbox struct {
	repo  Repository
	clock func() time.Time
}

func NewInbox(repo Repository) (Inbox, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &inbox{repo: repo, clock: func() time.Time { return time.Now().UTC() }}, nil
}

func (b *inbox) List(ctx context.Context, q InboxQuery) (*Page, error) {
	if q.UserID == uuid.Nil {
		return nil, errUserRequired
	}
	after, err := pagination.ParseCursor(q.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	page := &Page{Items: []models.Notification{}}
	rows, next, err := b.repo.List(ctx, listQuery{UserID: q.UserID, Limit: q.Limit, After: after, UnreadOnly: q.UnreadOnly})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	if len(rows) > 0 {
		page.Items = rows
	}
	page.Cursor = next
	return page, nil
}

// MarkRead succeeds again for a notification that is already read.
func (b *inbox) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil || notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and notification id required")
	}
	found, err := b.repo.MarkRead(ctx, userID, notificationID, b.clock())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		// Someone else's notification looks the same as a missing one.
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (b *inbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, errUserRequired
	}
	n, err := b.repo.MarkAllRead(ctx, userID, b.clock())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return n, nil
}
