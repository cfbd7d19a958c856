package channel

// OneBotConfig configures a OneBot v11 implementation (go-cqhttp, NapCat, Lagrange)
// reached over its forward websocket.
type OneBotConfig struct {
	Enabled     bool     `json:"enabled"`
	URL         string   `json:"url"`
	AccessToken string   `json:"accessToken,omitempty"`
	AllowFrom   []string `json:"allowFrom"`
	// ReconnectSeconds is the pause before redialling a dropped connection.
	ReconnectSeconds int `json:"reconnectSeconds"`
	// CallTimeoutSeconds bounds a single API call (send, delete, member info).
	CallTimeoutSeconds int `json:"callTimeoutSeconds"`
}

func DefaultOneBotConfig() OneBotConfig {
	return OneBotConfig{
		URL:                "ws://127.0.0.1:3001",
		AllowFrom:          []string{},
		ReconnectSeconds:   5,
		CallTimeoutSeconds: 10,
	}
}
