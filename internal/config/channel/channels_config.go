package channel

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
	OneBot   OneBotConfig   `json:"onebot"`
	Feishu   FeishuConfig   `json:"feishu"`
}

func DefaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		Telegram: DefaultTelegramConfig(),
		Slack:    DefaultSlackConfig(),
		OneBot:   DefaultOneBotConfig(),
		Feishu:   DefaultFeishuConfig(),
	}
}
