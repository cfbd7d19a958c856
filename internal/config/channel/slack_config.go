package channel

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled       bool     `json:"enabled"`
	BotToken      string   `json:"botToken"`
	AppToken      string   `json:"appToken"`
	ReplyInThread bool     `json:"replyInThread"`
	GroupPolicy   string   `json:"groupPolicy"` // "open" or "mention"
	AllowFrom     []string `json:"allowFrom"`
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{
		ReplyInThread: true,
		GroupPolicy:   "mention",
		AllowFrom:     []string{},
	}
}
