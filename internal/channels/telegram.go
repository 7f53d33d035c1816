package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/observability"
	"github.com/neoclaw-ai/geostream/internal/runtime"
	"golang.org/x/time/rate"
)

const telegramFeedQueue = 16

type telegramSendMessageFunc func(context.Context, *bot.SendMessageParams) (*models.Message, error)

// TelegramFeed configures forwarding of decoded statuses to one chat.
type TelegramFeed struct {
	ChatID int64
	// PerMinute caps forwarded statuses. Statuses over the cap are dropped.
	PerMinute int
}

var (
	_ runtime.Listener = (*TelegramListener)(nil)
	_ runtime.Outputs  = (*TelegramListener)(nil)
)

// TelegramListener accepts control commands from allowlisted users and
// optionally forwards decoded statuses to a feed chat.
type TelegramListener struct {
	token   string
	allowed map[string]struct{}

	feed    TelegramFeed
	limiter *rate.Limiter
	feedCh  chan string

	sendMu      sync.RWMutex
	sendMessage telegramSendMessageFunc

	// Outlet emissions of the record being assembled. Only the dispatcher
	// goroutine calls Emit.
	pendingName string
	pendingText string
}

// NewTelegram creates a Telegram listener over one bot token and allowlist.
func NewTelegram(token string, allowedUsers []string, feed TelegramFeed) *TelegramListener {
	allowed := make(map[string]struct{}, len(allowedUsers))
	for _, id := range allowedUsers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		allowed[id] = struct{}{}
	}

	t := &TelegramListener{
		token:   token,
		allowed: allowed,
		feed:    feed,
		feedCh:  make(chan string, telegramFeedQueue),
	}
	if feed.ChatID != 0 && feed.PerMinute > 0 {
		t.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(feed.PerMinute)), 1)
	}
	return t
}

// Listen starts long-polling Telegram and dispatches authorized messages.
func (t *TelegramListener) Listen(ctx context.Context, handler runtime.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	if strings.TrimSpace(t.token) == "" {
		return errors.New("telegram token is required")
	}
	if len(t.allowed) == 0 {
		logging.Logger().Warn("No authorized Telegram users. Add user IDs to channels.telegram.allowed_users.")
	}

	b, err := bot.New(strings.TrimSpace(t.token), bot.WithDefaultHandler(func(updateCtx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil || update.Message == nil {
			return
		}
		t.handleInboundMessage(updateCtx, handler, update.Message)
	}))
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("fetch telegram bot profile: %w", err)
	}
	logging.Logger().Info(fmt.Sprintf("Connected to Telegram Bot @%s", strings.TrimSpace(me.Username)))

	t.setSender(b.SendMessage)
	go t.runFeed(ctx)
	b.Start(ctx)
	return nil
}

// Emit assembles one status from the outlet sequence and queues it for the
// feed chat. The raw outlet is not forwarded.
func (t *TelegramListener) Emit(_ context.Context, outlet runtime.Outlet, payload string) error {
	if t.limiter == nil {
		return nil
	}
	switch outlet {
	case runtime.OutletScreenName:
		t.pendingName = payload
	case runtime.OutletText:
		t.pendingText = payload
	case runtime.OutletCreatedAt:
		text := formatFeedStatus(t.pendingName, t.pendingText, payload)
		t.pendingName, t.pendingText = "", ""
		if !t.limiter.Allow() {
			observability.FeedThrottled.Inc()
			return nil
		}
		select {
		case t.feedCh <- text:
		default:
			observability.FeedThrottled.Inc()
		}
	}
	return nil
}

func (t *TelegramListener) runFeed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.feedCh:
			if _, err := t.send(ctx, &bot.SendMessageParams{ChatID: t.feed.ChatID, Text: text}); err != nil {
				logging.Logger().Warn("telegram feed send failed", "chat_id", t.feed.ChatID, "err", err)
			}
		}
	}
}

func formatFeedStatus(screenName, text, createdAt string) string {
	return fmt.Sprintf("@%s (%s)\n%s", screenName, createdAt, text)
}

func (t *TelegramListener) handleInboundMessage(ctx context.Context, handler runtime.Handler, msg *models.Message) {
	if msg == nil || msg.From == nil {
		return
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	username := strings.TrimSpace(msg.From.Username)
	logging.Logger().Info(
		"telegram inbound message",
		"user_id", userID,
		"username", username,
		"text", messagePreview(msg.Text, 100),
	)
	if !t.isAllowedUser(userID) {
		return
	}

	writer := &telegramWriter{listener: t, chatID: msg.Chat.ID}
	text := stripBotMention(strings.TrimSpace(msg.Text))
	if err := handler.HandleMessage(ctx, writer, &runtime.Message{Text: text}); err != nil {
		logging.Logger().Warn("telegram control command failed", "user_id", userID, "err", err)
		if werr := writer.WriteMessage(ctx, "Error: `"+err.Error()+"`"); werr != nil {
			logging.Logger().Warn("telegram reply failed", "chat_id", msg.Chat.ID, "err", werr)
		}
	}
}

func (t *TelegramListener) isAllowedUser(userID string) bool {
	_, ok := t.allowed[strings.TrimSpace(userID)]
	return ok
}

type telegramWriter struct {
	listener *TelegramListener
	chatID   int64
}

// WriteMessage renders markdown replies as Telegram HTML and falls back to
// plain text when rendering fails.
func (w *telegramWriter) WriteMessage(ctx context.Context, text string) error {
	if w == nil || w.listener == nil {
		return errors.New("telegram sender is not configured")
	}
	params := &bot.SendMessageParams{ChatID: w.chatID, Text: text}
	if formatted, err := formatTelegram(text); err == nil && formatted != "" {
		params.Text = formatted
		params.ParseMode = models.ParseModeHTML
	}
	_, err := w.listener.send(ctx, params)
	return err
}

func (t *TelegramListener) setSender(send telegramSendMessageFunc) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	t.sendMessage = send
}

func (t *TelegramListener) send(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	t.sendMu.RLock()
	send := t.sendMessage
	t.sendMu.RUnlock()
	if send == nil {
		return nil, errors.New("telegram bot is not connected")
	}
	return send(ctx, params)
}

// stripBotMention turns "/status@geo_bot" into "/status".
func stripBotMention(text string) string {
	head, rest, found := strings.Cut(text, " ")
	if i := strings.Index(head, "@"); i > 0 && strings.HasPrefix(head, "/") {
		head = head[:i]
	}
	if !found {
		return head
	}
	return head + " " + rest
}

func messagePreview(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
