package agentsession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/psds-microservice/support-chat-service/internal/errs"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = c.now
	m := NewManager("secret", DefaultTTL, store)
	m.now = c.now
	return m, store, c
}

var sarah = model.Actor{ID: "a-1", Name: "Sarah", Role: model.RoleSupportAgent}

func TestIssueAndRestore(t *testing.T) {
	m, store, c := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Issue(ctx, sarah)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(24*time.Hour), sess.ExpiresAt)
	assert.Equal(t, 1, store.Len())

	got, err := m.Restore(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sarah, got)
}

func TestRestoreAfterTTL(t *testing.T) {
	m, _, c := newTestManager(t)
	ctx := context.Background()
	sess, err := m.Issue(ctx, sarah)
	require.NoError(t, err)

	c.t = c.t.Add(23 * time.Hour)
	_, err = m.Restore(ctx, sess.Token)
	require.NoError(t, err)

	c.t = c.t.Add(2 * time.Hour)
	_, err = m.Restore(ctx, sess.Token)
	assert.ErrorIs(t, err, errs.ErrSessionExpired)
}

func TestClearRevokes(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	sess, err := m.Issue(ctx, sarah)
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx, sess.Token))
	assert.Equal(t, 0, store.Len())
	_, err = m.Restore(ctx, sess.Token)
	assert.ErrorIs(t, err, errs.ErrSessionExpired)

	assert.NoError(t, m.Clear(ctx, sess.Token))
}

func TestRestoreRejectsForeignTokens(t *testing.T) {
	m, _, c := newTestManager(t)
	ctx := context.Background()

	_, err := m.Restore(ctx, "")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = m.Restore(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	other := NewManager("other-secret", DefaultTTL, NewMemoryStore())
	other.now = c.now
	sess, err := other.Issue(ctx, sarah)
	require.NoError(t, err)
	_, err = m.Restore(ctx, sess.Token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             model.RoleSuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ID: "x", Subject: "a-1", ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour))},
	})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Restore(ctx, raw)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestIssueRequiresIdentity(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Issue(context.Background(), model.Actor{Role: model.RoleSupportAgent})
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = m.Issue(context.Background(), model.Actor{ID: "x", Role: "guest"})
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

type accountsFunc func(ctx context.Context, agentID string) error

func (f accountsFunc) CheckActive(ctx context.Context, agentID string) error { return f(ctx, agentID) }

func TestRestoreRejectsDeactivatedAgent(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	active := map[string]bool{sarah.ID: true}
	m.WithAccounts(accountsFunc(func(_ context.Context, id string) error {
		if !active[id] {
			return errs.ErrInactiveAgent
		}
		return nil
	}))

	sess, err := m.Issue(ctx, sarah)
	require.NoError(t, err)
	_, err = m.Restore(ctx, sess.Token)
	require.NoError(t, err)

	active[sarah.ID] = false
	_, err = m.Restore(ctx, sess.Token)
	assert.ErrorIs(t, err, errs.ErrInactiveAgent)
	assert.Equal(t, 0, store.Len())

	// The record is gone: reactivation needs a new login.
	active[sarah.ID] = true
	_, err = m.Restore(ctx, sess.Token)
	assert.ErrorIs(t, err, errs.ErrSessionExpired)
}

func TestRestoreKeepsSessionWhenAccountLookupFails(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	down := errors.New("db down")
	m.WithAccounts(accountsFunc(func(context.Context, string) error { return down }))

	sess, err := m.Issue(ctx, sarah)
	require.NoError(t, err)
	_, err = m.Restore(ctx, sess.Token)
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 1, store.Len())
}
