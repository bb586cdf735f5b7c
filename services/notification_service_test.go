package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/models"
)

func seedNotifications(t *testing.T, svc *NotificationService, org string, n int) []models.Notification {
	t.Helper()
	var out []models.Notification
	for i := 0; i < n; i++ {
		notif := models.Notification{OrgID: org, Title: "Ticket update", Message: "Support replied"}
		require.NoError(t, svc.Create(context.Background(), &notif))
		out = append(out, notif)
	}
	return out
}

func TestCreatePublishesToOrgOrRecipient(t *testing.T) {
	bus := &recordingBus{}
	svc := NewNotificationService(setupTestDB(t), bus)
	ctx := context.Background()

	orgWide := models.Notification{OrgID: "A", Title: "Plan", Message: "Plan upgraded"}
	require.NoError(t, svc.Create(ctx, &orgWide))
	personal := models.Notification{OrgID: "A", UserID: strPtr("u1"), Message: "Ticket assigned", Type: models.NotificationWarning}
	require.NoError(t, svc.Create(ctx, &personal))

	assert.NotZero(t, orgWide.ID)
	assert.Equal(t, models.NotificationUnread, orgWide.Status)
	assert.Equal(t, models.NotificationInfo, orgWide.Type)

	envs := bus.named(events.NotificationNew)
	require.Len(t, envs, 2)
	assert.Equal(t, events.Org("A"), envs[0].Scope)
	assert.Equal(t, events.User("A", "u1"), envs[1].Scope)
	assert.Equal(t, personal.ID, envs[1].Data.(events.NotificationCreated).ID)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	bus := &recordingBus{}
	svc := NewNotificationService(setupTestDB(t), bus)

	err := svc.Create(context.Background(), &models.Notification{OrgID: "A"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	err = svc.Create(context.Background(), &models.Notification{OrgID: "A", Message: "x", Type: "LOUD"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, bus.published())
}

func TestMarkAllReadIsIdempotent(t *testing.T) {
	bus := &recordingBus{}
	svc := NewNotificationService(setupTestDB(t), bus)
	ctx := context.Background()
	created := seedNotifications(t, svc, "A", 3)
	seedNotifications(t, svc, "B", 1)

	n, err := svc.MarkAllRead(ctx, events.Org("A"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = svc.MarkAllRead(ctx, events.Org("A"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	list, err := svc.List(ctx, events.Org("A"), 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, notif := range list {
		assert.Equal(t, models.NotificationRead, notif.Status)
		assert.NotNil(t, notif.ReadAt)
		assert.Equal(t, created[len(created)-1-i].ID, notif.ID)
	}

	readAll := bus.named(events.NotificationReadAll)
	require.Len(t, readAll, 1)
	assert.Equal(t, events.Org("A"), readAll[0].Scope)
	assert.Equal(t, int64(3), readAll[0].Data.(events.NotificationsMarkedRead).Count)

	unreadB, err := svc.UnreadCount(ctx, events.Org("B"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), unreadB)
}

func TestGlobalMarkAllReadPublishesPerOrg(t *testing.T) {
	bus := &recordingBus{}
	svc := NewNotificationService(setupTestDB(t), bus)
	seedNotifications(t, svc, "A", 2)
	seedNotifications(t, svc, "B", 1)

	n, err := svc.MarkAllRead(context.Background(), events.Global())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	counts := map[string]int64{}
	for _, env := range bus.named(events.NotificationReadAll) {
		counts[env.Scope.OrgID] = env.Data.(events.NotificationsMarkedRead).Count
	}
	assert.Equal(t, map[string]int64{"A": 2, "B": 1}, counts)
}

func TestConcurrentMarkAllReadChangesEachRowOnce(t *testing.T) {
	bus := &recordingBus{}
	svc := NewNotificationService(setupTestDB(t), bus)
	seedNotifications(t, svc, "A", 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var total int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.MarkAllRead(context.Background(), events.Org("A"))
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), total)
	assert.Len(t, bus.named(events.NotificationReadAll), 1)
	assert.Zero(t, svc.locks.held(), "org lock entries are released")
}

func TestOrgLocksReleaseEntries(t *testing.T) {
	var l orgLocks
	for _, org := range []string{"A", "B", "C"} {
		l.lock(events.Org(org))()
	}
	assert.Zero(t, l.held())

	unlockA := l.lock(events.Org("A"))
	acquired := make(chan struct{})
	go func() {
		unlock := l.lock(events.Org("A"))
		close(acquired)
		unlock()
	}()
	assert.Never(t, func() bool {
		select {
		case <-acquired:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond, "second writer waits for the first")
	assert.Equal(t, 1, l.held())

	unlockA()
	<-acquired
	require.Eventually(t, func() bool { return l.held() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMarkReadScopesAndPublishes(t *testing.T) {
	bus := &recordingBus{}
	svc := NewNotificationService(setupTestDB(t), bus)
	ctx := context.Background()
	notif := seedNotifications(t, svc, "A", 1)[0]

	_, err := svc.MarkRead(ctx, events.Org("B"), notif.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.MarkRead(ctx, events.Org("A"), 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.MarkRead(ctx, events.User("A", "u1"), notif.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationRead, got.Status)

	again, err := svc.MarkRead(ctx, events.Org("A"), notif.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationRead, again.Status)

	read := bus.named(events.NotificationRead)
	require.Len(t, read, 1)
	assert.Equal(t, events.Org("A"), read[0].Scope)
	assert.Equal(t, notif.ID, read[0].Data.(events.NotificationMarkedRead).ID)
}

func TestUserScopeHidesOtherUsersNotifications(t *testing.T) {
	svc := NewNotificationService(setupTestDB(t), &recordingBus{})
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, &models.Notification{OrgID: "A", Message: "org wide"}))
	require.NoError(t, svc.Create(ctx, &models.Notification{OrgID: "A", UserID: strPtr("u1"), Message: "for u1"}))
	require.NoError(t, svc.Create(ctx, &models.Notification{OrgID: "A", UserID: strPtr("u2"), Message: "for u2"}))

	list, err := svc.List(ctx, events.User("A", "u1"), 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "for u1", list[0].Message)
	assert.Equal(t, "org wide", list[1].Message)

	all, err := svc.List(ctx, events.Org("A"), 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteAllIsIdempotent(t *testing.T) {
	bus := &recordingBus{}
	svc := NewNotificationService(setupTestDB(t), bus)
	ctx := context.Background()
	seedNotifications(t, svc, "A", 2)
	seedNotifications(t, svc, "B", 1)
	published := len(bus.published())

	n, err := svc.DeleteAll(ctx, events.Org("A"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = svc.DeleteAll(ctx, events.Org("A"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	left, err := svc.List(ctx, events.Global(), 0, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "B", left[0].OrgID)
	assert.Len(t, bus.published(), published)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc := NewNotificationService(setupTestDB(t), &recordingBus{})
	ctx := context.Background()
	created := seedNotifications(t, svc, "A", 5)

	page, err := svc.List(ctx, events.Org("A"), 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, created[4].ID, page[0].ID)
	assert.Equal(t, created[3].ID, page[1].ID)

	page, err = svc.List(ctx, events.Org("A"), page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, created[2].ID, page[0].ID)

	page, err = svc.List(ctx, events.Org("A"), created[0].ID, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}
