// Package config defines the configuration schema for selfrecall.
//
// JSON keys use camelCase. YAML files use the same keys.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/selfrecall/selfrecall/internal/config/channel"
	"github.com/selfrecall/selfrecall/internal/config/gateway"
	"github.com/selfrecall/selfrecall/internal/recall"
)

// RecallConfig holds the recall policy. Times are whole seconds.
type RecallConfig struct {
	EnablePrivateRecall bool     `json:"enablePrivateRecall"`
	EnableGroupRecall   bool     `json:"enableGroupRecall"`
	GroupWhitelist      []string `json:"groupWhitelist"`
	PrivateRecallTime   int      `json:"privateRecallTime"`
	GroupRecallTime     int      `json:"groupRecallTime"`
	AdminRecallTime     int      `json:"adminRecallTime"`
	MemberRecallTime    int      `json:"memberRecallTime"`
	DelayMode           string   `json:"delayMode"` // "flat" or "role"
	MaxRecallTime       int      `json:"maxRecallTime"`
	AdminOnly           bool     `json:"adminOnly"`
	Admins              []string `json:"admins"`
	DeleteTimeout       int      `json:"deleteTimeout"`
}

func defaultRecallConfig() RecallConfig {
	return RecallConfig{
		EnablePrivateRecall: true,
		EnableGroupRecall:   true,
		GroupWhitelist:      []string{},
		PrivateRecallTime:   20,
		GroupRecallTime:     30,
		AdminRecallTime:     60,
		MemberRecallTime:    100,
		DelayMode:           string(recall.DelayFlat),
		MaxRecallTime:       600,
		AdminOnly:           true,
		Admins:              []string{},
		DeleteTimeout:       10,
	}
}

// Settings converts the file representation into the snapshot the recall core reads.
func (c RecallConfig) Settings() recall.Settings {
	return recall.Settings{
		EnablePrivate: c.EnablePrivateRecall,
		EnableGroup:   c.EnableGroupRecall,
		Whitelist:     append([]string(nil), c.GroupWhitelist...),
		PrivateDelay:  seconds(c.PrivateRecallTime),
		GroupDelay:    seconds(c.GroupRecallTime),
		AdminDelay:    seconds(c.AdminRecallTime),
		MemberDelay:   seconds(c.MemberRecallTime),
		MaxDelay:      seconds(c.MaxRecallTime),
		DelayMode:     recall.DelayMode(strings.ToLower(c.DelayMode)),
		AdminOnly:     c.AdminOnly,
		Admins:        append([]string(nil), c.Admins...),
	}
}

// DeleteTimeoutDuration bounds one platform delete call.
func (c RecallConfig) DeleteTimeoutDuration() time.Duration {
	if c.DeleteTimeout <= 0 {
		return 10 * time.Second
	}
	return seconds(c.DeleteTimeout)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// StorageConfig selects where overrides and recall history live.
type StorageConfig struct {
	OverrideBackend string `json:"overrideBackend"` // "memory" or "redis"
	RedisAddr       string `json:"redisAddr"`
	RedisPassword   string `json:"redisPassword,omitempty"`
	RedisDB         int    `json:"redisDb"`
	RedisPrefix     string `json:"redisPrefix"`
	// OverrideTTL expires unconsumed Redis overrides after this many seconds; 0 keeps them.
	OverrideTTL int    `json:"overrideTtl"`
	HistoryPath string `json:"historyPath"`
	// HistoryDays is how long finished actions stay in the history; 0 keeps them forever.
	HistoryDays  int    `json:"historyDays"`
	AnnouncePath string `json:"announcePath"`
}

func defaultStorageConfig() StorageConfig {
	return StorageConfig{
		OverrideBackend: "memory",
		RedisAddr:       "127.0.0.1:6379",
		RedisPrefix:     recall.DefaultOverridePrefix,
		HistoryPath:     "~/.selfrecall/history.db",
		HistoryDays:     30,
		AnnouncePath:    "~/.selfrecall/announce/jobs.json",
	}
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.selfrecall/config.json.
type Config struct {
	Recall   RecallConfig           `json:"recall"`
	Channels channel.ChannelsConfig `json:"channels"`
	Gateway  gateway.GatewayConfig  `json:"gateway"`
	Storage  StorageConfig          `json:"storage"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Recall:   defaultRecallConfig(),
		Channels: channel.DefaultChannelsConfig(),
		Gateway:  gateway.DefaultGatewayConfig(),
		Storage:  defaultStorageConfig(),
	}
}

// HistoryPath returns the expanded absolute path of the history database.
func (c *Config) HistoryPath() string {
	p := c.Storage.HistoryPath
	if p == "" {
		return filepath.Join(DataDir(), "history.db")
	}
	return ExpandHome(p)
}

// AnnouncePath returns the expanded path of the announcement job file.
func (c *Config) AnnouncePath() string {
	p := c.Storage.AnnouncePath
	if p == "" {
		return filepath.Join(DataDir(), "announce", "jobs.json")
	}
	return ExpandHome(p)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
