package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yeremiapane/tenant-realtime/models"
)

// AggregateSource answers the read-only queries behind a metrics snapshot.
// An empty orgID means every org.
type AggregateSource interface {
	CountMembers(ctx context.Context, orgID string, createdBefore time.Time) (int64, error)
	SumPayments(ctx context.Context, orgID string, from, to time.Time) (sum float64, count int64, err error)
	CountAPIUsage(ctx context.Context, orgID string, since time.Time) (int64, error)
	CountAuditErrors(ctx context.Context, orgID string, since time.Time) (int64, error)
	CountUnread(ctx context.Context, orgID string) (int64, error)
}

// GormAggregateSource runs the aggregate queries against the primary
// database.
type GormAggregateSource struct {
	DB *gorm.DB
}

func NewGormAggregateSource(db *gorm.DB) *GormAggregateSource {
	return &GormAggregateSource{DB: db}
}

func (s *GormAggregateSource) org(ctx context.Context, model interface{}, orgID string) *gorm.DB {
	q := s.DB.WithContext(ctx).Model(model)
	if orgID != "" {
		q = q.Where("org_id = ?", orgID)
	}
	return q
}

// CountMembers counts members, only those created before createdBefore
// when it is set.
func (s *GormAggregateSource) CountMembers(ctx context.Context, orgID string, createdBefore time.Time) (int64, error) {
	q := s.org(ctx, &models.Member{}, orgID)
	if !createdBefore.IsZero() {
		q = q.Where("created_at < ?", createdBefore)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// SumPayments totals completed payments created in [from, to). A zero
// bound is open.
func (s *GormAggregateSource) SumPayments(ctx context.Context, orgID string, from, to time.Time) (float64, int64, error) {
	q := s.org(ctx, &models.Payment{}, orgID).Where("status = ?", models.PaymentCompleted)
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to)
	}
	var row struct {
		Total float64
		Count int64
	}
	err := q.Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").Scan(&row).Error
	return row.Total, row.Count, err
}

func (s *GormAggregateSource) CountAPIUsage(ctx context.Context, orgID string, since time.Time) (int64, error) {
	var n int64
	err := s.org(ctx, &models.APIUsage{}, orgID).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}

func (s *GormAggregateSource) CountAuditErrors(ctx context.Context, orgID string, since time.Time) (int64, error) {
	var n int64
	err := s.org(ctx, &models.AuditLog{}, orgID).
		Where("action LIKE ?", "%ERROR%").
		Where("created_at >= ?", since).
		Count(&n).Error
	return n, err
}

func (s *GormAggregateSource) CountUnread(ctx context.Context, orgID string) (int64, error) {
	var n int64
	err := s.org(ctx, &models.Notification{}, orgID).Where("status = ?", models.NotificationUnread).Count(&n).Error
	return n, err
}

// DatabaseCheck pings the database behind db.
func DatabaseCheck(db *gorm.DB) HealthCheck {
	return HealthCheck{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}
