package services

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/models"
	"github.com/yeremiapane/tenant-realtime/utils"
)

// OutboxRelay moves rows written to event_outbox by other services onto
// the bus, oldest first.
type OutboxRelay struct {
	DB        *gorm.DB
	Publisher *EventPublisher
	StopChan  chan struct{}
	Interval  time.Duration
	BatchSize int
}

func NewOutboxRelay(db *gorm.DB, publisher *EventPublisher) *OutboxRelay {
	return &OutboxRelay{
		DB:        db,
		Publisher: publisher,
		StopChan:  make(chan struct{}),
		Interval:  1 * time.Second,
		BatchSize: 100,
	}
}

func (rl *OutboxRelay) Start() {
	go func() {
		ticker := time.NewTicker(rl.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := rl.RelayPending(); err != nil {
					utils.ErrorLogger.Printf("Error relaying outbox: %v", err)
				}
			case <-rl.StopChan:
				return
			}
		}
	}()
}

func (rl *OutboxRelay) Stop() {
	close(rl.StopChan)
}

// RelayPending claims one batch of unprocessed rows, commits them as
// processed and then publishes them. A row is published at most once: a
// failed claim publishes nothing, and a crash after the commit loses the
// batch rather than replaying it. Rows that cannot be decoded or routed are
// claimed too, so one bad row never blocks the ones behind it.
func (rl *OutboxRelay) RelayPending() (int, error) {
	var rows []models.OutboxEvent

	err := rl.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("processed = ?", false).
			Order("id ASC").
			Limit(rl.BatchSize).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uint, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}
		return tx.Model(&models.OutboxEvent{}).
			Where("id IN ?", ids).
			Update("processed", true).Error
	})
	if err != nil {
		return 0, err
	}

	relayed := 0
	for _, row := range rows {
		_, err := rl.Publisher.PublishRaw(events.Name(row.Event), row.OrgID, row.UserID, json.RawMessage(row.Data))
		switch {
		case err == nil:
			relayed++
		case errors.Is(err, events.ErrMalformedEvent), errors.Is(err, events.ErrInvalidScope), errors.Is(err, ErrStoreOwnedEvent):
			utils.ErrorLogger.WithError(err).WithFields(logrus.Fields{
				"outbox_id": row.ID,
				"event":     row.Event,
				"org_id":    row.OrgID,
			}).Error("discarding malformed outbox row")
		default:
			utils.ErrorLogger.WithError(err).WithField("outbox_id", row.ID).Error("discarding unpublishable outbox row")
		}
	}

	if len(rows) > 0 {
		utils.InfoLogger.WithFields(logrus.Fields{"rows": len(rows), "relayed": relayed}).Info("outbox batch processed")
	}
	return relayed, nil
}
