// Package session owns the process-wide session boundary. There is exactly
// one controller per process; it is the only caller allowed to force-clear
// the handle registry and the local tables, and it does both — completely —
// on every transition out of an authenticated session. A second user's
// session must never observe a record cached for the first.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"inkwell/client/internal/localstore"
	"inkwell/client/internal/registry"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

// Controller is the session boundary state machine.
type Controller struct {
	mu     sync.Mutex
	state  State
	userID string

	registry *registry.Registry
	store    *localstore.Store
	log      zerolog.Logger

	unsubscribe func()
}

// NewController wires the controller and registers its single logout
// subscription. Re-creating a controller for the same collaborators would
// duplicate teardown work, so construct one per process and Close it on
// shutdown.
func NewController(reg *registry.Registry, store *localstore.Store, auth AuthEvents, log zerolog.Logger) *Controller {
	c := &Controller{
		state:    StateUnauthenticated,
		registry: reg,
		store:    store,
		log:      log.With().Str("component", "session").Logger(),
	}
	if auth != nil {
		c.unsubscribe = auth.SubscribeLogout(func() {
			if err := c.Logout(context.Background()); err != nil {
				c.log.Error().Err(err).Msg("logout teardown failed")
			}
		})
	}
	return c
}

// Login moves the controller into Authenticated for userID. Logging in over
// an existing session tears the old one down first so no cached state
// crosses the boundary.
func (c *Controller) Login(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("login: empty user id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAuthenticated {
		if err := c.teardownLocked(ctx); err != nil {
			return err
		}
	}
	c.state = StateAuthenticated
	c.userID = userID
	c.log.Info().Str("user", userID).Msg("session started")
	return nil
}

// LoginWithToken verifies an access token and starts a session for its
// subject.
func (c *Controller) LoginWithToken(ctx context.Context, token, secret string) (string, error) {
	userID, err := UserIDFromToken(token, secret)
	if err != nil {
		return "", err
	}
	if err := c.Login(ctx, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// Logout transitions to Unauthenticated. The transition is only reported
// complete once every document handle is force-released and every local
// table is cleared; it is idempotent, so a logout signal arriving while
// already unauthenticated still re-runs the wipe harmlessly.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.teardownLocked(ctx); err != nil {
		return err
	}
	c.state = StateUnauthenticated
	c.userID = ""
	return nil
}

func (c *Controller) teardownLocked(ctx context.Context) error {
	c.registry.ForceReleaseAll()
	if err := c.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear local tables: %w", err)
	}
	c.log.Info().Msg("session state purged")
	return nil
}

// State returns the current state and user ID ("" when unauthenticated).
func (c *Controller) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.userID
}

// CurrentUser returns the authenticated user ID or "".
func (c *Controller) CurrentUser() string {
	_, userID := c.State()
	return userID
}

// Close drops the logout subscription. The session itself is left as-is.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}
