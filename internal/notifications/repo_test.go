package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedNotification(t *testing.T, repo Repository, userID uuid.UUID, createdAt time.Time) models.Notification {
	t.Helper()
	row := models.Notification{
		UserID:         userID,
		Type:           enums.NotificationTypeOrderStatus,
		Title:          "Order update",
		Message:        "hello",
		DeliveryMethod: pq.StringArray{"in_app"},
		CreatedAt:      createdAt,
	}
	rows := []models.Notification{row}
	require.NoError(t, repo.Insert(context.Background(), rows))
	return rows[0]
}

func TestListPagesWithoutSkippingRows(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	user := dbtest.MustCreateUser(t, client.DB(), enums.ActorRoleCustomer)
	other := dbtest.MustCreateUser(t, client.DB(), enums.ActorRoleCustomer)
	base := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

	var want []uuid.UUID
	for i := 4; i >= 0; i-- {
		row := seedNotification(t, repo, user.ID, base.Add(time.Duration(i)*time.Minute))
		want = append(want, row.ID)
	}
	seedNotification(t, repo, other.ID, base.Add(time.Hour))

	var got []uuid.UUID
	q := listQuery{UserID: user.ID, Limit: 2}
	for page := 0; page < 5; page++ {
		rows, next, err := repo.List(context.Background(), q)
		require.NoError(t, err)
		for _, row := range rows {
			got = append(got, row.ID)
		}
		if next == "" {
			break
		}
		q.After, err = pagination.ParseCursor(next)
		require.NoError(t, err)
	}
	assert.Equal(t, want, got)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	owner := dbtest.MustCreateUser(t, client.DB(), enums.ActorRoleCustomer)
	stranger := dbtest.MustCreateUser(t, client.DB(), enums.ActorRoleCustomer)
	row := seedNotification(t, repo, owner.ID, time.Now().UTC())
	now := time.Now().UTC().Truncate(time.Microsecond)

	found, err := repo.MarkRead(ctx, stranger.ID, row.ID, now)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.MarkRead(ctx, owner.ID, row.ID, now)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.MarkRead(ctx, owner.ID, row.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, found, "already read still counts as found")

	var stored models.Notification
	require.NoError(t, client.DB().First(&stored, "id = ?", row.ID).Error)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.ReadAt.Equal(now), "second read must not move read_at")

	unread, _, err := repo.List(ctx, listQuery{UserID: owner.ID, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestMarkAllReadAndCleanup(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	user := dbtest.MustCreateUser(t, client.DB(), enums.ActorRoleCustomer)
	for i := 0; i < 3; i++ {
		seedNotification(t, repo, user.ID, time.Now().UTC())
	}

	readAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	count, err := repo.MarkAllRead(ctx, user.ID, readAt)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	deleted, err := repo.DeleteReadBefore(ctx, readAt.Add(time.Hour), 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	rest, _, err := repo.List(ctx, listQuery{UserID: user.ID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestRecipientLookups(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	businessID := uuid.New()

	active := dbtest.MustCreateStaff(t, client.DB(), businessID, true)
	dbtest.MustCreateStaff(t, client.DB(), businessID, false)
	dbtest.MustCreateStaff(t, client.DB(), uuid.New(), true)
	admin := dbtest.MustCreateUser(t, client.DB(), enums.ActorRoleAdmin)
	inactive := dbtest.MustCreateUser(t, client.DB(), enums.ActorRoleAdmin)
	require.NoError(t, client.DB().Model(&models.User{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

	staff, err := repo.ActiveStaffUserIDs(ctx, businessID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{active.ID}, staff)

	admins, err := repo.ActiveAdminUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{admin.ID}, admins)
}

func TestHasUnreadTracksOrderAndKind(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	admin := dbtest.MustCreateUser(t, client.DB(), enums.ActorRoleAdmin)
	orderID := uuid.New()

	pending, err := repo.HasUnread(ctx, orderID, enums.NotificationTypeManualAssignmentRequired)
	require.NoError(t, err)
	assert.False(t, pending)

	rows := []models.Notification{{
		UserID:         admin.ID,
		OrderID:        &orderID,
		Type:           enums.NotificationTypeManualAssignmentRequired,
		Title:          "Manual assignment required",
		Message:        "No drivers available",
		DeliveryMethod: pq.StringArray{"in_app"},
	}}
	require.NoError(t, repo.Insert(ctx, rows))

	pending, err = repo.HasUnread(ctx, orderID, enums.NotificationTypeManualAssignmentRequired)
	require.NoError(t, err)
	assert.True(t, pending)
	pending, err = repo.HasUnread(ctx, orderID, enums.NotificationTypeOrderStatus)
	require.NoError(t, err)
	assert.False(t, pending)

	found, err := repo.MarkRead(ctx, admin.ID, rows[0].ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, found)
	pending, err = repo.HasUnread(ctx, orderID, enums.NotificationTypeManualAssignmentRequired)
	require.NoError(t, err)
	assert.False(t, pending)
}
