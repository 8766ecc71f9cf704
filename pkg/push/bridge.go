package push

import (
	"context"
	"log/slog"
	"sync"
)

// Config tunes the bridge.
type Config struct {
	// AskForPermission routes a refused notification permission to the
	// host's prompt callback instead of silently giving up.
	AskForPermission bool

	// AutoDisplay asks the host to render foreground messages itself.
	AutoDisplay bool
}

// Events are the host-facing callbacks. All fields optional.
type Events struct {
	// OnRefreshToken fires with every new provider token, including the
	// initial fetch on Start.
	OnRefreshToken func(token string)

	// OnMessage fires for messages arriving in the foreground.
	OnMessage func(msg Message)

	// OnMessageOpened fires when the user opens a message; appStarted is
	// true when that open launched the process.
	OnMessageOpened func(msg Message, appStarted bool)

	// OnMessageDisplayed fires for background messages the OS rendered.
	OnMessageDisplayed func(msg Message)

	// AskForPermission is the host's own notification permission prompt.
	AskForPermission func()

	OnError func(stage string, err error)
}

func (e *Events) normalize() {
	if e.OnRefreshToken == nil {
		e.OnRefreshToken = func(string) {}
	}
	if e.OnMessage == nil {
		e.OnMessage = func(Message) {}
	}
	if e.OnMessageOpened == nil {
		e.OnMessageOpened = func(Message, bool) {}
	}
	if e.OnMessageDisplayed == nil {
		e.OnMessageDisplayed = func(Message) {}
	}
	if e.AskForPermission == nil {
		e.AskForPermission = func() {}
	}
	if e.OnError == nil {
		e.OnError = func(string, error) {}
	}
}

// Bridge subscribes to the provider and fans events out to the host. A
// permission refusal is non-fatal: the token and message plumbing still
// runs so a later grant needs no restart.
type Bridge struct {
	provider Provider
	cfg      Config
	events   Events
	logger   *slog.Logger

	mu         sync.Mutex
	started    bool
	unsubToken func()
	unsubFg    func()
	unsubBg    func()
}

// NewBridge creates a push bridge.
func NewBridge(provider Provider, cfg Config, events Events, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	events.normalize()
	return &Bridge{
		provider: provider,
		cfg:      cfg,
		events:   events,
		logger:   logger,
	}
}

// Start checks notification permission, installs the subscriptions and
// fetches the current token. Idempotent.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.unsubToken = b.provider.OnTokenRefresh(b.events.OnRefreshToken)
	b.unsubFg = b.provider.OnForegroundMessage(b.handleForeground)
	b.unsubBg = b.provider.OnBackgroundMessage(b.handleBackground)
	b.mu.Unlock()

	b.checkPermission(ctx)

	token, err := b.provider.Token(ctx)
	if err != nil {
		// Leave the bridge unstarted so the next Start retries the fetch.
		b.Stop()
		b.events.OnError("push token fetch fail", err)
		return err
	}
	if token != "" {
		b.events.OnRefreshToken(token)
	}
	return nil
}

// Stop removes the provider subscriptions. Idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.started = false
	if b.unsubToken != nil {
		b.unsubToken()
		b.unsubToken = nil
	}
	if b.unsubFg != nil {
		b.unsubFg()
		b.unsubFg = nil
	}
	if b.unsubBg != nil {
		b.unsubBg()
		b.unsubBg = nil
	}
}

// DrainPending delivers the notification that launched the process, if
// any, as an opened message with appStarted set.
func (b *Bridge) DrainPending(ctx context.Context) {
	msg, err := b.provider.InitialNotification(ctx)
	if err != nil {
		b.events.OnError("pending notification fail", err)
		return
	}
	if msg == nil {
		return
	}
	b.logger.Debug("notification launched the process", "event_id", msg.EventID())
	b.events.OnMessageOpened(*msg, true)
}

func (b *Bridge) checkPermission(ctx context.Context) {
	ok, err := b.provider.HasPermission(ctx)
	if err != nil {
		b.events.OnError("push permission check fail", err)
		return
	}
	if ok {
		return
	}
	if err := b.provider.RequestPermission(ctx); err != nil {
		if b.cfg.AskForPermission {
			b.events.AskForPermission()
		}
	}
}

func (b *Bridge) handleForeground(msg Message) {
	if b.cfg.AutoDisplay {
		b.events.OnMessageDisplayed(msg)
	}
	b.events.OnMessage(msg)
}

func (b *Bridge) handleBackground(msg Message) {
	b.events.OnMessageOpened(msg, false)
	b.events.OnMessageDisplayed(msg)
}
