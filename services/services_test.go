package services

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/models"
	"github.com/yeremiapane/tenant-realtime/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	os.Exit(m.Run())
}

// setupTestDB opens a private in-memory database for one test.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Notification{},
		&models.OutboxEvent{},
		&models.Member{},
		&models.Payment{},
		&models.APIUsage{},
		&models.AuditLog{},
	))
	return db
}

// recordingBus captures what would have been published.
type recordingBus struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (r *recordingBus) Publish(env events.Envelope) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return 1
}

func (r *recordingBus) published() []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Envelope(nil), r.envs...)
}

func (r *recordingBus) named(name events.Name) []events.Envelope {
	var out []events.Envelope
	for _, env := range r.published() {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }
