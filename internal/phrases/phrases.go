// Package phrases resolves localized bot phrases from a YAML table keyed by
// phrase name and language code, and recognizes fixed-choice replies by exact
// reverse lookup.
package phrases

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LanguageNameKey is the phrase holding each language's display name.
const LanguageNameKey = "language_name"

var (
	ErrMissingTranslation = errors.New("missing translation")
	ErrNotFound           = errors.New("phrase not found")
)

// Table is an immutable phrase lookup table. Safe for concurrent use.
type Table struct {
	phrases     map[string]map[string]string
	defaultLang string
}

// Load reads a phrase table from a YAML file.
func Load(path, defaultLang string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("phrases: read %s: %w", path, err)
	}

	var phrases map[string]map[string]string
	if err := yaml.Unmarshal(raw, &phrases); err != nil {
		return nil, fmt.Errorf("phrases: parse %s: %w", path, err)
	}
	if len(phrases[LanguageNameKey]) == 0 {
		return nil, fmt.Errorf("phrases: %s: no %s entries", path, LanguageNameKey)
	}

	return &Table{phrases: phrases, defaultLang: defaultLang}, nil
}

// Resolve returns the phrase text for key in lang, falling back to the
// default language when lang has no translation.
func (t *Table) Resolve(key, lang string) (string, error) {
	byLang, ok := t.phrases[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingTranslation, key)
	}
	if text, ok := byLang[lang]; ok {
		return text, nil
	}
	if text, ok := byLang[t.defaultLang]; ok {
		return text, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrMissingTranslation, key, lang)
}

// Get resolves key in lang, degrading to the raw key when no translation
// exists. Replies must never fail outright on a phrase table gap.
func (t *Table) Get(key, lang string) string {
	text, err := t.Resolve(key, lang)
	if err != nil {
		return key
	}
	return text
}

// Identify finds the phrase key whose text in any language equals the reply
// exactly. When candidates are given only those keys are considered.
func (t *Table) Identify(text string, candidates ...string) (string, error) {
	keys := candidates
	if len(keys) == 0 {
		keys = make([]string, 0, len(t.phrases))
		for key := range t.phrases {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}

	for _, key := range keys {
		for _, phrase := range t.phrases[key] {
			if phrase == text {
				return key, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, text)
}

// Languages returns the language codes present in the table, sorted.
func (t *Table) Languages() []string {
	langs := make([]string, 0, len(t.phrases[LanguageNameKey]))
	for lang := range t.phrases[LanguageNameKey] {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// LanguageName returns the display name of a language code.
func (t *Table) LanguageName(lang string) string {
	return t.phrases[LanguageNameKey][lang]
}

// LanguageByName maps a display name reply (e.g. "English") back to its
// language code.
func (t *Table) LanguageByName(name string) (string, error) {
	for lang, display := range t.phrases[LanguageNameKey] {
		if display == name {
			return lang, nil
		}
	}
	return "", fmt.Errorf("%w: language %q", ErrNotFound, name)
}
