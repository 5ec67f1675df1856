package prefs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"reportbot/internal/model"
)

type fakePrefStore struct {
	enabled   bool
	prefs     map[string]string
	findErr   error
	upsertErr error
	deleteErr error
	upserts   int
	deletes   int
}

func (f *fakePrefStore) PreferencesEnabled() bool { return f.enabled }

func (f *fakePrefStore) FindPreference(_ context.Context, username string) (*model.Preference, string, error) {
	if f.findErr != nil {
		return nil, "", f.findErr
	}
	lang, ok := f.prefs[username]
	if !ok {
		return nil, "", nil
	}
	return &model.Preference{Username: username, Language: lang}, "page-" + username, nil
}

func (f *fakePrefStore) UpsertPreference(_ context.Context, username, language string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.prefs == nil {
		f.prefs = map[string]string{}
	}
	f.prefs[username] = language
	f.upserts++
	return nil
}

func (f *fakePrefStore) DeletePreference(_ context.Context, username string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.prefs, username)
	f.deletes++
	return nil
}

func TestLanguage(t *testing.T) {
	ctx := context.Background()
	enabled := []string{"en", "ru"}

	t.Run("hit", func(t *testing.T) {
		store := &fakePrefStore{enabled: true, prefs: map[string]string{"narek": "ru"}}
		cache := NewCache(store, enabled, zap.NewNop())
		assert.Equal(t, "ru", cache.Language(ctx, "narek"))
	})

	t.Run("miss", func(t *testing.T) {
		store := &fakePrefStore{enabled: true}
		cache := NewCache(store, enabled, zap.NewNop())
		assert.Empty(t, cache.Language(ctx, "narek"))
	})

	t.Run("store disabled", func(t *testing.T) {
		store := &fakePrefStore{enabled: false, prefs: map[string]string{"narek": "ru"}}
		cache := NewCache(store, enabled, zap.NewNop())
		assert.Empty(t, cache.Language(ctx, "narek"))
	})

	t.Run("anonymous user", func(t *testing.T) {
		store := &fakePrefStore{enabled: true}
		cache := NewCache(store, enabled, zap.NewNop())
		assert.Empty(t, cache.Language(ctx, ""))
	})

	t.Run("lookup failure degrades", func(t *testing.T) {
		store := &fakePrefStore{enabled: true, findErr: errors.New("rate limited")}
		cache := NewCache(store, enabled, zap.NewNop())
		assert.Empty(t, cache.Language(ctx, "narek"))
	})

	t.Run("stored language no longer enabled", func(t *testing.T) {
		store := &fakePrefStore{enabled: true, prefs: map[string]string{"narek": "hy"}}
		cache := NewCache(store, enabled, zap.NewNop())
		assert.Empty(t, cache.Language(ctx, "narek"))
	})
}

func TestRemember(t *testing.T) {
	ctx := context.Background()

	store := &fakePrefStore{enabled: true}
	cache := NewCache(store, []string{"en"}, zap.NewNop())

	cache.Remember(ctx, "narek", "en")
	assert.Equal(t, 1, store.upserts)
	assert.Equal(t, "en", store.prefs["narek"])

	// Write failures and disabled stores are silent no-ops.
	store.upsertErr = errors.New("rate limited")
	cache.Remember(ctx, "narek", "en")
	assert.Equal(t, 1, store.upserts)

	cache.Remember(ctx, "", "en")
	assert.Equal(t, 1, store.upserts)
}

func TestForget(t *testing.T) {
	ctx := context.Background()

	store := &fakePrefStore{enabled: true, prefs: map[string]string{"narek": "en"}}
	cache := NewCache(store, []string{"en"}, zap.NewNop())

	cache.Forget(ctx, "narek")
	assert.Equal(t, 1, store.deletes)
	assert.Empty(t, store.prefs)

	store.deleteErr = errors.New("rate limited")
	cache.Forget(ctx, "narek")
	assert.Equal(t, 1, store.deletes)
}
