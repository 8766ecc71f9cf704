// Package auth owns the access-token lifecycle: registration, login,
// silent re-authentication on 401/403 and the single-flight guard that
// keeps concurrent triggers from doubling up network calls.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/3-electric-sheep/wisdk-go/pkg/api"
	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/repository"
)

// Server paths.
const (
	PathRegister = "account"
	PathLogin    = "auth/login"
)

// Config holds the authentication configuration.
type Config struct {
	// ProviderKey identifies the marketing provider and is attached to
	// every auth request.
	ProviderKey string

	// AutoAuthenticate re-authenticates silently when a call fails with
	// 401/403.
	AutoAuthenticate bool

	// Credentials used for automatic (re-)authentication. Nil means
	// anonymous registration.
	Credentials *domain.Credentials
}

// Callbacks notify the host app of auth state changes. Nil members are
// replaced with no-ops.
type Callbacks struct {
	// OnAuthenticate fires after a successful authentication with the
	// resulting session snapshot.
	OnAuthenticate func(session domain.Session)

	// OnAuthenticateFail fires on business failure, transport failure or
	// exhausted re-auth.
	OnAuthenticateFail func(err error)

	// OnNewAccessToken fires whenever the server hands out a token.
	OnNewAccessToken func(token string)
}

func (c *Callbacks) normalize() {
	if c.OnAuthenticate == nil {
		c.OnAuthenticate = func(domain.Session) {}
	}
	if c.OnAuthenticateFail == nil {
		c.OnAuthenticateFail = func(error) {}
	}
	if c.OnNewAccessToken == nil {
		c.OnNewAccessToken = func(string) {}
	}
}

// Controller drives authentication against the backend.
type Controller struct {
	api      *api.Client
	sessions *repository.SessionRepository
	cfg      Config
	cb       Callbacks
	logger   *slog.Logger

	// postAuth runs after a successful authentication, while the
	// single-flight guard is still held. The facade wires device
	// registration and monitoring bring-up here.
	postAuth func(ctx context.Context)

	inflight atomic.Bool
}

// NewController creates an auth controller.
func NewController(client *api.Client, sessions *repository.SessionRepository, cfg Config, cb Callbacks, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	cb.normalize()
	return &Controller{
		api:      client,
		sessions: sessions,
		cfg:      cfg,
		cb:       cb,
		logger:   logger,
	}
}

// SetPostAuthHook installs the continuation run after each successful
// authentication.
func (c *Controller) SetPostAuthHook(hook func(ctx context.Context)) {
	c.postAuth = hook
}

// IsAuthorized reports whether an access token is held.
func (c *Controller) IsAuthorized() bool {
	return c.api.IsAuthorized()
}

type authResponse struct {
	api.Envelope
	Data struct {
		Token    string          `json:"token"`
		AuthType domain.AuthType `json:"auth_type"`
		UserName string          `json:"user_name"`
	} `json:"data"`
}

// Authenticate registers or logs the device in. At most one attempt runs
// at a time: a call made while another is in flight returns immediately
// without starting a second request. The guard is released on every exit
// path before the call returns.
//
// creds of nil re-authenticates as whoever we were: the previously known
// user name if present, else anonymous registration. When
// allowAutoReauthOnFailure is set, a 401/403 clears the current token and
// the whole flow is retried exactly once.
func (c *Controller) Authenticate(ctx context.Context, creds *domain.Credentials, allowAutoReauthOnFailure bool) error {
	if !c.inflight.CompareAndSwap(false, true) {
		return nil
	}
	err := c.run(ctx, creds)
	c.inflight.Store(false)

	if err == nil {
		return nil
	}

	var be *domain.BusinessError
	if errors.As(err, &be) {
		c.cb.OnAuthenticateFail(be)
		c.clearAuth(ctx)
		return err
	}

	if allowAutoReauthOnFailure && domain.IsAuthFailure(err) {
		c.logger.Info("authentication rejected, retrying once", "error", err)
		c.clearToken(ctx)
		return c.Authenticate(ctx, c.cfg.Credentials, false)
	}

	c.cb.OnAuthenticateFail(err)
	c.clearAuth(ctx)
	return err
}

func (c *Controller) run(ctx context.Context, creds *domain.Credentials) error {
	params := c.resolveCredentials(creds)

	path := PathRegister
	if params.UserName != "" {
		path = PathLogin
	}

	var resp authResponse
	if err := c.api.Call(ctx, http.MethodPost, path, params, &resp, api.NoAuth); err != nil {
		return err
	}
	if !resp.Success {
		return resp.BusinessError()
	}

	token := resp.Data.Token
	if token == "" {
		// A success envelope with no token grants nothing; running the
		// post-auth continuation here would act on the stale session.
		c.logger.Warn("auth response carried no token")
		return nil
	}

	c.api.SetAccessToken(token)
	_ = c.sessions.Update(ctx, func(s *domain.Session) {
		s.AccessToken = token
		s.AuthType = resp.Data.AuthType
		s.UserName = resp.Data.UserName
	})
	c.cb.OnNewAccessToken(token)
	c.cb.OnAuthenticate(c.sessions.Session())

	if c.postAuth != nil {
		c.postAuth(ctx)
	}
	return nil
}

// resolveCredentials fills in the effective auth request body.
func (c *Controller) resolveCredentials(creds *domain.Credentials) domain.Credentials {
	var params domain.Credentials
	if creds == nil {
		if name := c.sessions.Session().UserName; name != "" {
			params.UserName = name
		} else {
			params.Anonymous = true
		}
	} else {
		params = *creds
	}
	if params.ProviderID == "" {
		params.ProviderID = c.cfg.ProviderKey
	}
	return params
}

// HandleAuthFailure is the shared 401/403 interception used by every
// authenticated call. The stale token is cleared either way; the failure
// counts as consumed only when auto-authentication is configured and a
// silent re-authentication runs. The caller does not surface the
// original error when true is returned; the failed call is re-issued by
// the next natural trigger. Without auto-authentication the caller must
// report the failure itself.
func (c *Controller) HandleAuthFailure(ctx context.Context, err error) bool {
	if !domain.IsAuthFailure(err) {
		return false
	}
	c.logger.Warn("auth failure encountered", "error", err)
	c.clearToken(ctx)
	if !c.cfg.AutoAuthenticate {
		return false
	}
	_ = c.Authenticate(ctx, c.cfg.Credentials, false)
	return true
}

// ClearAuth drops all auth state, memory and persisted.
func (c *Controller) ClearAuth(ctx context.Context) {
	c.clearAuth(ctx)
}

func (c *Controller) clearAuth(ctx context.Context) {
	c.api.ClearAuth()
	_ = c.sessions.Update(ctx, func(s *domain.Session) { s.ClearAuth() })
}

// clearToken drops only the access token, keeping user name and device
// token so a re-login can resume the same identity.
func (c *Controller) clearToken(ctx context.Context) {
	c.api.ClearAuth()
	_ = c.sessions.Update(ctx, func(s *domain.Session) { s.AccessToken = "" })
}
