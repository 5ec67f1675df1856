package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Action phrase keys in prompt order, each mapped to the environment variable
// naming its destination database.
var actionEnvVars = []struct {
	Action string
	EnvVar string
}{
	{"report_dirty_place", "TRASH_DB_ID"},
	{"report_place_for_urn", "URN_DB_ID"},
}

type Config struct {
	Telegram TelegramConfig
	Notion   NotionConfig
	Storage  StorageConfig
	Bot      BotConfig
	Map      MapConfig
	Ops      OpsConfig
}

type TelegramConfig struct {
	Token string
}

type NotionConfig struct {
	APIKey string
	// Actions lists enabled action phrase keys in prompt order.
	Actions []string
	// ActionDatabases maps an action phrase key to its destination database id.
	ActionDatabases map[string]string
	PreferencesDB   string
}

type StorageConfig struct {
	Bucket   string
	Endpoint string
	KeyID    string
	Secret   string
}

type BotConfig struct {
	// Languages restricts the enabled language codes. Empty means every
	// language present in the phrase table.
	Languages       []string
	DefaultLanguage string
	PhrasesFile     string
	MediaRequired   bool
	Thumbnails      bool
	LogLevel        string
}

type MapConfig struct {
	// DatabaseID is the report database rendered by mapgen.
	DatabaseID string
	// DetailsPageHost is the public host serving report detail pages.
	DetailsPageHost string
	OutputKey       string
}

type OpsConfig struct {
	Addr string
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		Telegram: TelegramConfig{
			Token: os.Getenv("TELEGRAM_TOKEN"),
		},
		Notion: NotionConfig{
			APIKey:          os.Getenv("NOTION_API_KEY"),
			ActionDatabases: map[string]string{},
			PreferencesDB:   os.Getenv("PREFERENCES_DB_ID"),
		},
		Storage: StorageConfig{
			Bucket:   os.Getenv("S3_BUCKET"),
			Endpoint: getenv("S3_BUCKET_ENDPOINT", "https://storage.yandexcloud.net"),
			KeyID:    os.Getenv("AWS_KEY_ID"),
			Secret:   os.Getenv("AWS_KEY"),
		},
		Bot: BotConfig{
			Languages:       splitList(os.Getenv("LANGUAGES")),
			DefaultLanguage: getenv("DEFAULT_LANGUAGE", "en"),
			PhrasesFile:     getenv("PHRASES_FILE", "phrases.yaml"),
			MediaRequired:   boolenv("MEDIA_REQUIRED", false),
			Thumbnails:      boolenv("THUMBNAILS_ENABLED", false),
			LogLevel:        getenv("LOG_LEVEL", "info"),
		},
		Map: MapConfig{
			DatabaseID:      os.Getenv("TRASH_DB_ID"),
			DetailsPageHost: os.Getenv("NOTION_STATIC_PAGE_URL"),
			OutputKey:       getenv("MAP_OUTPUT_KEY", "map.png"),
		},
		Ops: OpsConfig{
			Addr: getenv("OPS_ADDR", ":8080"),
		},
	}

	for _, a := range actionEnvVars {
		if id := os.Getenv(a.EnvVar); id != "" {
			cfg.Notion.Actions = append(cfg.Notion.Actions, a.Action)
			cfg.Notion.ActionDatabases[a.Action] = id
		}
	}

	return cfg, nil
}

// CheckBot validates the configuration required by the bot binary.
func (c *Config) CheckBot() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if len(c.Notion.Actions) == 0 {
		return fmt.Errorf("provide a database for at least one action")
	}
	return c.checkShared()
}

// CheckMapgen validates the configuration required by the mapgen binary.
func (c *Config) CheckMapgen() error {
	if c.Map.DatabaseID == "" {
		return fmt.Errorf("TRASH_DB_ID is required")
	}
	return c.checkShared()
}

func (c *Config) checkShared() error {
	if c.Notion.APIKey == "" {
		return fmt.Errorf("NOTION_API_KEY is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.Storage.KeyID == "" || c.Storage.Secret == "" {
		return fmt.Errorf("AWS_KEY_ID and AWS_KEY are required")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolenv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
