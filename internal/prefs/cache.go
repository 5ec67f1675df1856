// Package prefs remembers a user's language choice across conversations.
package prefs

import (
	"context"

	"go.uber.org/zap"

	"reportbot/internal/model"
)

type Store interface {
	PreferencesEnabled() bool
	FindPreference(ctx context.Context, username string) (*model.Preference, string, error)
	UpsertPreference(ctx context.Context, username, language string) error
	DeletePreference(ctx context.Context, username string) error
}

// Cache consults the external preference store at conversation start. Lookup
// and write failures degrade to "no preference": a broken preference store
// must never block a report.
type Cache struct {
	store     Store
	languages map[string]bool
	log       *zap.Logger
}

func NewCache(store Store, languages []string, log *zap.Logger) *Cache {
	enabled := make(map[string]bool, len(languages))
	for _, lang := range languages {
		enabled[lang] = true
	}
	return &Cache{store: store, languages: enabled, log: log.Named("prefs")}
}

// Language returns the remembered language for a user, or "" when unknown,
// unset, or no longer among the enabled languages.
func (c *Cache) Language(ctx context.Context, username string) string {
	if !c.store.PreferencesEnabled() || username == "" {
		return ""
	}

	pref, _, err := c.store.FindPreference(ctx, username)
	if err != nil {
		c.log.Warn("preference lookup failed", zap.String("user", username), zap.Error(err))
		return ""
	}
	if pref == nil || pref.Language == "" {
		return ""
	}
	if !c.languages[pref.Language] {
		c.log.Warn("stored language not enabled",
			zap.String("user", username),
			zap.String("language", pref.Language))
		return ""
	}
	return pref.Language
}

// Remember upserts the user's language choice.
func (c *Cache) Remember(ctx context.Context, username, language string) {
	if !c.store.PreferencesEnabled() || username == "" {
		return
	}
	if err := c.store.UpsertPreference(ctx, username, language); err != nil {
		c.log.Warn("preference upsert failed", zap.String("user", username), zap.Error(err))
	}
}

// Forget deletes the user's stored preference.
func (c *Cache) Forget(ctx context.Context, username string) {
	if !c.store.PreferencesEnabled() || username == "" {
		return
	}
	if err := c.store.DeletePreference(ctx, username); err != nil {
		c.log.Warn("preference delete failed", zap.String("user", username), zap.Error(err))
	}
}
