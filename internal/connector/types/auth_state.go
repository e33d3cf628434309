package types

import (
	"context"
	"sync"
)

// AuthState represents where a connector sits in its authentication lifecycle.
// Failure always returns to Unauthenticated; there is no terminal failure
// state, so the next call retries from scratch.
type AuthState int

const (
	AuthUnauthenticated AuthState = iota
	AuthAuthenticating
	AuthAuthenticated
)

// String returns the human-readable state name
func (s AuthState) String() string {
	switch s {
	case AuthUnauthenticated:
		return "Unauthenticated"
	case AuthAuthenticating:
		return "Authenticating"
	case AuthAuthenticated:
		return "Authenticated"
	default:
		return "Unknown"
	}
}

// AuthGate manages the authentication state transitions for one connector.
// Ensure is the only entry point that moves the gate forward; Clear drops the
// session.
type AuthGate struct {
	mu    sync.RWMutex
	state AuthState
}

// NewAuthGate creates a gate in the Unauthenticated state.
func NewAuthGate() *AuthGate {
	return &AuthGate{state: AuthUnauthenticated}
}

// State returns the current authentication state.
func (g *AuthGate) State() AuthState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// IsAuthenticated reports whether the gate holds a live session.
func (g *AuthGate) IsAuthenticated() bool {
	return g.State() == AuthAuthenticated
}

// Ensure runs the authenticate function unless a session is already held.
// On failure the gate transitions back to Unauthenticated so the next call
// retries rather than caching the failure.
func (g *AuthGate) Ensure(ctx context.Context, authenticate func(context.Context) error) error {
	g.mu.Lock()
	if g.state == AuthAuthenticated {
		g.mu.Unlock()
		return nil
	}
	g.state = AuthAuthenticating
	g.mu.Unlock()

	if err := authenticate(ctx); err != nil {
		g.mu.Lock()
		g.state = AuthUnauthenticated
		g.mu.Unlock()
		return err
	}

	g.mu.Lock()
	g.state = AuthAuthenticated
	g.mu.Unlock()
	return nil
}

// Clear drops any held session, returning the gate to Unauthenticated.
// Safe to call in any state.
func (g *AuthGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = AuthUnauthenticated
}
