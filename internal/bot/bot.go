package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/config"
	"github.com/leozw/domain-tracker/internal/core"
	"github.com/leozw/domain-tracker/internal/state"
)

const defaultAPIBase = "https://api.telegram.org"

// Replier answers a command in the chat that issued it. Satisfied by
// notify.TelegramSink.
type Replier interface {
	SendChat(ctx context.Context, chatID, message string) error
}

// Bot is the chat control plane: it long-polls Telegram for commands and
// maps them onto state store operations. It is just another concurrent
// mutator of the store; the scheduler never coordinates with it directly.
type Bot struct {
	apiBase     string
	token       string
	authorized  map[string]bool
	store       *state.Store
	replier     Replier
	pollTimeout time.Duration
	client      *http.Client
	logger      *zap.Logger
	offset      int64
}

func New(cfg config.TelegramConfig, store *state.Store, replier Replier, logger *zap.Logger) *Bot {
	authorized := make(map[string]bool, len(cfg.AuthorizedChatIDs))
	for _, id := range cfg.AuthorizedChatIDs {
		authorized[id] = true
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Bot{
		apiBase:     defaultAPIBase,
		token:       cfg.BotToken,
		authorized:  authorized,
		store:       store,
		replier:     replier,
		pollTimeout: pollTimeout,
		// The HTTP timeout must outlast the long poll itself.
		client: &http.Client{Timeout: pollTimeout + 5*time.Second},
		logger: logger,
	}
}

// WithAPIBase overrides the Telegram API endpoint; used by tests.
func (b *Bot) WithAPIBase(base string) *Bot {
	b.apiBase = base
	return b
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	Text string `json:"text"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Run long-polls for commands until ctx is cancelled. Poll failures are
// retried with a growing delay and never terminate the process.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("control bot started")

	consecutiveErrors := 0
	for {
		if ctx.Err() != nil {
			b.logger.Info("control bot stopped")
			return
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			consecutiveErrors++
			delay := 5 * time.Second
			if consecutiveErrors >= 5 {
				b.logger.Warn("repeated poll failures, slowing down",
					zap.Int("consecutive_errors", consecutiveErrors))
				delay = 30 * time.Second
				consecutiveErrors = 0
			} else {
				b.logger.Error("poll failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		consecutiveErrors = 0

		for _, u := range updates {
			b.offset = u.UpdateID + 1
			if u.Message != nil {
				b.handleMessage(ctx, u.Message)
			}
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(b.offset, 10))
	params.Set("timeout", strconv.FormatInt(int64(b.pollTimeout/time.Second), 10))
	params.Set("allowed_updates", `["message"]`)

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", b.apiBase, b.token, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getUpdates returned status %d", resp.StatusCode)
	}

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return parsed.Result, nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if !b.authorized[chatID] {
		b.logger.Warn("unauthorized command attempt", zap.String("chat_id", chatID))
		return
	}

	reply := HandleCommand(b.store, msg.Text)
	if reply == "" {
		return
	}

	if err := b.replier.SendChat(ctx, chatID, reply); err != nil {
		b.logger.Error("failed to reply to command",
			zap.String("chat_id", chatID), zap.Error(err))
	}
}

// HandleCommand parses one command line and executes it against the store,
// returning the user-facing reply. An empty string means no reply is owed
// (non-command chatter).
func HandleCommand(store *state.Store, text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	parts := strings.Fields(text)
	command := strings.ToLower(parts[0])
	// Commands in group chats arrive as /cmd@botname.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch command {
	case "/add":
		return handleAdd(store, arg)
	case "/remove":
		return handleRemove(store, arg)
	case "/reset":
		return handleReset(store, arg)
	case "/list":
		return handleList(store)
	case "/status":
		return handleStatus(store)
	case "/help":
		return helpText
	default:
		return "❓ Unknown command. Use /help to see available commands."
	}
}

func handleAdd(store *state.Store, domain string) string {
	if !core.ValidateDomain(domain) {
		return "❌ Invalid domain format. Please provide a valid domain (e.g., example.com)"
	}
	name := core.NormalizeDomain(domain)
	if err := store.Add(name); err != nil {
		if errors.Is(err, state.ErrAlreadyTracked) {
			return fmt.Sprintf("⚠️ Domain <code>%s</code> is already being monitored.", name)
		}
		return fmt.Sprintf("❌ Error adding domain: %v", err)
	}
	return fmt.Sprintf("✅ Domain <code>%s</code> added to monitoring list.", name)
}

func handleRemove(store *state.Store, domain string) string {
	name := core.NormalizeDomain(domain)
	if err := store.Remove(name); err != nil {
		if errors.Is(err, state.ErrNotTracked) {
			return fmt.Sprintf("⚠️ Domain <code>%s</code> is not in the monitoring list.", name)
		}
		return fmt.Sprintf("❌ Error removing domain: %v", err)
	}
	return fmt.Sprintf("✅ Domain <code>%s</code> removed from monitoring list.", name)
}

func handleReset(store *state.Store, domain string) string {
	if !core.ValidateDomain(domain) {
		return "❌ Invalid domain format. Please provide a valid domain (e.g., example.com)"
	}
	name := core.NormalizeDomain(domain)
	if err := store.Reset(name); err != nil {
		if errors.Is(err, state.ErrNotTracked) {
			return fmt.Sprintf("❌ Domain %s is not being monitored. Use /add to add it first.", name)
		}
		return fmt.Sprintf("❌ Error resetting domain: %v", err)
	}
	return fmt.Sprintf("✅ Domain %s has been reset and will be monitored again.", name)
}

func handleList(store *state.Store) string {
	snapshot := store.Snapshot()
	if len(snapshot.Domains) == 0 {
		return "📋 No domains are currently being monitored."
	}

	names := make([]string, 0, len(snapshot.Domains))
	for name := range snapshot.Domains {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Monitored Domains (%d):</b>\n\n", len(names))
	for _, name := range names {
		rec := snapshot.Domains[name]
		fmt.Fprintf(&b, "%s <code>%s</code> (%s)\n", statusEmoji(rec.Status), name, rec.Status)
	}
	return b.String()
}

func handleStatus(store *state.Store) string {
	stats := store.Stats()
	var b strings.Builder
	b.WriteString("📊 <b>Domain Monitoring Status</b>\n\n")
	fmt.Fprintf(&b, "📋 Total domains: %d\n", stats.Total)
	fmt.Fprintf(&b, "✅ Available: %d\n", stats.Unregistered)
	fmt.Fprintf(&b, "⏳ Registered: %d\n", stats.Registered)
	fmt.Fprintf(&b, "❓ Unknown: %d\n", stats.Unknown)
	fmt.Fprintf(&b, "🔍 Total checks: %d\n\n", stats.TotalChecks)
	b.WriteString("Use /list to see detailed domain status.")
	return b.String()
}

func statusEmoji(status core.DomainStatus) string {
	switch status {
	case core.StatusUnregistered:
		return "✅"
	case core.StatusRegistered:
		return "⏳"
	default:
		return "❓"
	}
}

const helpText = `🤖 <b>Domain Tracker Bot Commands</b>

<b>Domain Management:</b>
/add &lt;domain&gt; - Add domain to monitoring
/remove &lt;domain&gt; - Remove domain from monitoring
/reset &lt;domain&gt; - Re-arm notification for a domain

<b>Information:</b>
/list - Show all monitored domains
/status - Show monitoring statistics
/help - Show this help message

<b>Examples:</b>
<code>/add example.com</code>
<code>/remove example.com</code>
<code>/reset example.com</code>`
