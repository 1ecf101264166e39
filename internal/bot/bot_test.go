package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/config"
	"github.com/leozw/domain-tracker/internal/core"
	"github.com/leozw/domain-tracker/internal/state"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	return state.Open(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
}

func TestAddCommand(t *testing.T) {
	store := newTestStore(t)

	reply := HandleCommand(store, "/add Example.COM")
	assert.Contains(t, reply, "added")
	assert.Equal(t, []string{"example.com"}, store.Domains())

	reply = HandleCommand(store, "/add example.com")
	assert.Contains(t, reply, "already being monitored")
	assert.Len(t, store.Domains(), 1)
}

func TestAddRejectsInvalidDomain(t *testing.T) {
	store := newTestStore(t)
	reply := HandleCommand(store, "/add not_a_domain")
	assert.Contains(t, reply, "Invalid domain")
	assert.Empty(t, store.Domains())
}

func TestRemoveCommand(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("example.com"))

	reply := HandleCommand(store, "/remove example.com")
	assert.Contains(t, reply, "removed")
	assert.Empty(t, store.Domains())

	reply = HandleCommand(store, "/remove example.com")
	assert.Contains(t, reply, "not in the monitoring list")
}

func TestResetCommand(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("example.com"))
	store.MutateDomain("example.com", func(rec *core.DomainRecord) {
		rec.Status = core.StatusUnregistered
		rec.NotificationSent = true
	})

	reply := HandleCommand(store, "/reset example.com")
	assert.Contains(t, reply, "reset")

	rec := store.Record("example.com")
	assert.Equal(t, core.StatusUnknown, rec.Status)
	assert.False(t, rec.NotificationSent)

	reply = HandleCommand(store, "/reset unknown.com")
	assert.Contains(t, reply, "not being monitored")
}

func TestListAndStatusCommands(t *testing.T) {
	store := newTestStore(t)

	assert.Contains(t, HandleCommand(store, "/list"), "No domains")

	require.NoError(t, store.Add("a.com"))
	require.NoError(t, store.Add("b.com"))
	store.MutateDomain("a.com", func(rec *core.DomainRecord) { rec.Status = core.StatusUnregistered })

	list := HandleCommand(store, "/list")
	assert.Contains(t, list, "a.com")
	assert.Contains(t, list, "b.com")

	status := HandleCommand(store, "/status")
	assert.Contains(t, status, "Total domains: 2")
	assert.Contains(t, status, "Available: 1")
}

func TestCommandWithBotSuffix(t *testing.T) {
	store := newTestStore(t)
	reply := HandleCommand(store, "/add@tracker_bot example.com")
	assert.Contains(t, reply, "added")
}

func TestNonCommandTextIsIgnored(t *testing.T) {
	store := newTestStore(t)
	assert.Empty(t, HandleCommand(store, "hello there"))
	assert.Empty(t, HandleCommand(store, ""))
}

func TestUnknownCommand(t *testing.T) {
	store := newTestStore(t)
	assert.Contains(t, HandleCommand(store, "/frobnicate"), "Unknown command")
}

func TestHelpCommand(t *testing.T) {
	store := newTestStore(t)
	help := HandleCommand(store, "/help")
	assert.Contains(t, help, "/add")
	assert.Contains(t, help, "/reset")
}

func TestGetUpdatesUsesConfiguredPollTimeout(t *testing.T) {
	var gotTimeout string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTimeout = r.URL.Query().Get("timeout")
		fmt.Fprint(w, `{"ok":true,"result":[]}`)
	}))
	defer srv.Close()

	cfg := config.TelegramConfig{BotToken: "token", PollTimeout: 7 * time.Second}
	b := New(cfg, newTestStore(t), nil, zap.NewNop()).WithAPIBase(srv.URL)

	_, err := b.getUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7", gotTimeout, "long-poll timeout must track telegram.polltimeout")
}
