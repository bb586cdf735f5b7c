package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/hub"
	"github.com/yeremiapane/tenant-realtime/models"
	"github.com/yeremiapane/tenant-realtime/utils"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 100
)

var (
	ErrNotFound     = errors.New("notification not found")
	ErrInvalidInput = errors.New("invalid notification")
)

// NotificationService is the only writer of notification state. Every
// successful change is published on the bus after it is committed.
type NotificationService struct {
	DB  *gorm.DB
	Bus hub.Publisher

	locks orgLocks
	log   logrus.FieldLogger
}

func NewNotificationService(db *gorm.DB, bus hub.Publisher) *NotificationService {
	return &NotificationService{
		DB:  db,
		Bus: bus,
		log: utils.InfoLogger.WithField("component", "notifications"),
	}
}

// Create stores n and publishes notification:new to its org, or to its
// recipient when UserID is set.
func (s *NotificationService) Create(ctx context.Context, n *models.Notification) error {
	if n.OrgID == "" || n.Message == "" {
		return fmt.Errorf("%w: orgId and message are required", ErrInvalidInput)
	}
	if n.Type == "" {
		n.Type = models.NotificationInfo
	}
	if !models.ValidNotificationType(n.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, n.Type)
	}
	n.ID = 0
	n.Status = models.NotificationUnread
	n.ReadAt = nil

	if err := s.DB.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	scope := events.Org(n.OrgID)
	if !n.IsOrgWide() {
		scope = events.User(n.OrgID, *n.UserID)
	}
	s.publish(scope, events.NotificationCreated{Notification: *n})
	return nil
}

// MarkRead marks one notification visible to scope as read. Marking an
// already read notification succeeds without publishing.
func (s *NotificationService) MarkRead(ctx context.Context, scope events.Scope, id uint) (*models.Notification, error) {
	var n models.Notification
	err := s.scoped(s.DB.WithContext(ctx), scope).First(&n, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load notification %d: %w", id, err)
	}
	if n.Status == models.NotificationRead {
		return &n, nil
	}

	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND status = ?", n.ID, models.NotificationUnread).
		Updates(map[string]interface{}{"status": models.NotificationRead, "read_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("mark notification %d read: %w", id, res.Error)
	}
	n.Status = models.NotificationRead
	n.ReadAt = &now

	if res.RowsAffected > 0 {
		s.publish(events.Org(n.OrgID), events.NotificationMarkedRead{ID: n.ID})
	}
	return &n, nil
}

// MarkAllRead marks every unread notification in scope as read and
// returns how many changed. It is serialized per org and publishes
// notification:readAll for each org that actually changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, scope events.Scope) (int64, error) {
	unlock := s.locks.lock(scope)
	defer unlock()

	type orgCount struct {
		OrgID string
		Count int64
	}
	var changed []orgCount
	var total int64

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.scoped(tx.Model(&models.Notification{}), scope).
			Select("org_id, COUNT(*) AS count").
			Where("status = ?", models.NotificationUnread).
			Group("org_id").
			Scan(&changed).Error; err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		res := s.scoped(tx.Model(&models.Notification{}), scope).
			Where("status = ?", models.NotificationUnread).
			Updates(map[string]interface{}{"status": models.NotificationRead, "read_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		total = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark all read in %s: %w", scope, err)
	}

	for _, c := range changed {
		if c.Count > 0 {
			s.publish(events.Org(c.OrgID), events.NotificationsMarkedRead{Count: c.Count})
		}
	}
	return total, nil
}

// DeleteAll removes every notification in scope. Deleting nothing is not
// an error.
func (s *NotificationService) DeleteAll(ctx context.Context, scope events.Scope) (int64, error) {
	unlock := s.locks.lock(scope)
	defer unlock()

	db := s.DB.WithContext(ctx)
	if scope.Kind == events.ScopeGlobal {
		db = db.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	res := s.scoped(db, scope).Delete(&models.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete notifications in %s: %w", scope, res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.WithFields(logrus.Fields{"scope": scope.Key(), "deleted": res.RowsAffected}).Info("notifications deleted")
	}
	return res.RowsAffected, nil
}

// List returns the newest notifications visible to scope. cursor is the id
// of the last item of the previous page, zero for the first page.
func (s *NotificationService) List(ctx context.Context, scope events.Scope, cursor uint, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	q := s.scoped(s.DB.WithContext(ctx), scope)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	var out []models.Notification
	if err := q.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications in %s: %w", scope, err)
	}
	return out, nil
}

// UnreadCount counts unread notifications visible to scope.
func (s *NotificationService) UnreadCount(ctx context.Context, scope events.Scope) (int64, error) {
	var n int64
	err := s.scoped(s.DB.WithContext(ctx).Model(&models.Notification{}), scope).
		Where("status = ?", models.NotificationUnread).
		Count(&n).Error
	return n, err
}

// scoped restricts q to the rows scope may see. A user sees org-wide
// notifications and their own.
func (s *NotificationService) scoped(q *gorm.DB, scope events.Scope) *gorm.DB {
	switch scope.Kind {
	case events.ScopeOrg:
		return q.Where("org_id = ?", scope.OrgID)
	case events.ScopeUser:
		return q.Where("org_id = ? AND (user_id IS NULL OR user_id = '' OR user_id = ?)", scope.OrgID, scope.UserID)
	default:
		return q
	}
}

func (s *NotificationService) publish(scope events.Scope, p events.Payload) {
	if s.Bus == nil {
		return
	}
	env, err := events.New(scope, p)
	if err != nil {
		utils.ErrorLogger.WithError(err).WithField("event", p.EventName()).Error("refusing to publish invalid envelope")
		return
	}
	n := s.Bus.Publish(env)
	s.log.WithFields(logrus.Fields{"event": env.Event, "scope": scope.Key(), "subscribers": n}).Debug("event published")
}

// orgLocks serializes bulk writes per org. An unscoped bulk write excludes
// every org. An org's entry lives only while someone holds or waits on it.
type orgLocks struct {
	all sync.RWMutex
	mu  sync.Mutex
	m   map[string]*orgLock
}

type orgLock struct {
	sync.Mutex
	refs int
}

func (l *orgLocks) lock(scope events.Scope) func() {
	if scope.Kind == events.ScopeGlobal {
		l.all.Lock()
		return l.all.Unlock
	}
	l.all.RLock()
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*orgLock)
	}
	m, ok := l.m[scope.OrgID]
	if !ok {
		m = &orgLock{}
		l.m[scope.OrgID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.m, scope.OrgID)
		}
		l.mu.Unlock()
		l.all.RUnlock()
	}
}

// held is the number of orgs with a live lock entry.
func (l *orgLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
