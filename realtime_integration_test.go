package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/tenant-realtime/client"
	"github.com/yeremiapane/tenant-realtime/config"
	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/models"
	"github.com/yeremiapane/tenant-realtime/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	os.Exit(m.Run())
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		GinMode:               "test",
		DBDriver:              "sqlite",
		DBDSN:                 "file:integration?mode=memory&cache=shared",
		JWTSecret:             "integration-secret",
		WebhookSecret:         "integration-hook",
		HeartbeatInterval:     time.Second,
		SubscriptionQueueSize: 32,
		RegistryShards:        4,
		MetricsQueryTimeout:   time.Second,
		OutboxInterval:        time.Hour,
		ShutdownTimeout:       5 * time.Second,
		RateLimitRPS:          1000,
		RateLimitBurst:        1000,
		CORSOrigins:           []string{"*"},
	}
}

func post(t *testing.T, url, tok string, body interface{}) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

// TestLiveFeedEndToEnd follows one member's dashboard through the whole
// stack: stream, resync, producers of every kind, optimistic mark-all-read
// and server shutdown.
func TestLiveFeedEndToEnd(t *testing.T) {
	a, err := newApp(testConfig())
	require.NoError(t, err)
	srv := httptest.NewServer(a.server.Handler)
	defer srv.Close()

	mint := func(org, user, role string) string {
		tok, err := utils.GenerateToken(utils.Identity{OrgID: org, UserID: user, Role: role}, time.Hour)
		require.NoError(t, err)
		return tok
	}
	alice := mint("org-a", "alice", utils.RoleMember)
	bob := mint("org-b", "bob", utils.RoleOrgAdmin)
	root := mint("", "root", utils.RoleSuperadmin)

	// one notification exists before the dashboard opens
	require.Equal(t, http.StatusCreated, post(t, srv.URL+"/api/notifications", alice, map[string]string{"title": "old", "message": "before"}))

	api := client.NewAPI(srv.URL, alice)
	feed := client.NewFeed()
	ctrl := client.NewController(srv.URL+"/api/notifications/stream", alice)
	ctrl.Policy = client.RetryPolicy{Type: client.BackoffFixed, Base: 20 * time.Millisecond}
	var mu sync.Mutex
	var states []client.State
	ctrl.OnState = func(s client.State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}
	ctrl.Resync = func(ctx context.Context) error { return api.Resync(ctx, feed) }
	ctrl.OnEvent = func(env events.Envelope) { feed.Apply(env) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return len(feed.List()) == 1 }, 5*time.Second, 10*time.Millisecond, "initial resync")
	require.Eventually(t, func() bool { return a.bus.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	// own org arrives, other org does not
	require.Equal(t, http.StatusCreated, post(t, srv.URL+"/api/notifications", bob, map[string]string{"title": "b", "message": "for bob"}))
	require.Equal(t, http.StatusCreated, post(t, srv.URL+"/api/notifications", alice, map[string]string{"title": "new", "message": "live"}))
	require.Eventually(t, func() bool { return len(feed.List()) == 2 }, 5*time.Second, 10*time.Millisecond)
	for _, n := range feed.List() {
		assert.Equal(t, "org-a", n.OrgID)
	}
	assert.Equal(t, 2, feed.Unread())

	// operator broadcast and an outbox ticket
	require.Equal(t, http.StatusAccepted, post(t, srv.URL+"/api/admin/broadcast", root, map[string]string{"message": "maintenance tonight"}))
	require.NoError(t, a.relay.DB.Create(&models.OutboxEvent{
		Event: string(events.SupportTicketNew),
		OrgID: "org-a",
		Data:  `{"id":"T-7","title":"Invoice missing"}`,
	}).Error)
	relayed, err := a.relay.RelayPending()
	require.NoError(t, err)
	assert.Equal(t, 1, relayed)
	require.Eventually(t, func() bool { return len(feed.Notices()) == 2 }, 5*time.Second, 10*time.Millisecond)
	notices := feed.Notices()
	assert.Equal(t, events.NotificationBroadcast, notices[0].Event)
	assert.Equal(t, events.SupportTicketNew, notices[1].Event)

	// optimistic mark-all-read agrees with the server
	require.NoError(t, api.MarkAllReadOptimistic(context.Background(), feed))
	assert.Zero(t, feed.Unread())
	list, err := api.List(context.Background())
	require.NoError(t, err)
	for _, n := range list {
		assert.Equal(t, models.NotificationRead, n.Status)
	}

	// shutdown ends the session through the normal teardown path
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.NoError(t, a.manager.Shutdown(shutdownCtx))
	assert.Zero(t, a.manager.Active())
	assert.Zero(t, a.bus.Len())
	require.Eventually(t, func() bool { return ctrl.State() == client.StateReconnecting || ctrl.State() == client.StateConnecting }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, client.StateClosed, ctrl.State())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 3)
	assert.Equal(t, []client.State{client.StateConnecting, client.StateOpen}, states[:2])
}
