package bus

// Channel names a chat platform adapter.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelSlack    Channel = "slack"
	ChannelOneBot   Channel = "onebot"
	ChannelFeishu   Channel = "feishu"
	ChannelCLI      Channel = "cli"
)
