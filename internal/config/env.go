package config

import (
	"log/slog"
	"os"
	"strconv"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SELFRECALL_"

// ApplyEnv overlays secrets and endpoints from SELFRECALL_* variables onto cfg.
// Values already loaded from a .env file (see cmd) are visible here as well.
func ApplyEnv(cfg *Config) {
	str := map[string]*string{
		"TELEGRAM_TOKEN":      &cfg.Channels.Telegram.Token,
		"SLACK_BOT_TOKEN":     &cfg.Channels.Slack.BotToken,
		"SLACK_APP_TOKEN":     &cfg.Channels.Slack.AppToken,
		"ONEBOT_URL":          &cfg.Channels.OneBot.URL,
		"ONEBOT_ACCESS_TOKEN": &cfg.Channels.OneBot.AccessToken,
		"FEISHU_APP_ID":       &cfg.Channels.Feishu.AppID,
		"FEISHU_APP_SECRET":   &cfg.Channels.Feishu.AppSecret,
		"API_TOKEN":           &cfg.Gateway.APIToken,
		"OVERRIDE_BACKEND":    &cfg.Storage.OverrideBackend,
		"REDIS_ADDR":          &cfg.Storage.RedisAddr,
		"REDIS_PASSWORD":      &cfg.Storage.RedisPassword,
		"HISTORY_PATH":        &cfg.Storage.HistoryPath,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REDIS_DB":     &cfg.Storage.RedisDB,
		"GATEWAY_PORT": &cfg.Gateway.Port,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("config: ignoring non-numeric env override", "var", EnvPrefix+name, "value", v)
			continue
		}
		*dst = n
	}
}
