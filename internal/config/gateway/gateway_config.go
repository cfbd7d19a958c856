package gateway

// GatewayConfig holds gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken string `json:"apiToken,omitempty"`
	// HeartbeatSeconds is the config-reload and housekeeping interval.
	HeartbeatSeconds int `json:"heartbeatSeconds"`
	// Echo sends non-command messages back as regular, recallable messages.
	Echo bool `json:"echo"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{Host: "0.0.0.0", Port: 18790, HeartbeatSeconds: 30}
}
