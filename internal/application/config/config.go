package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`

	// MediaEcho - возвращать отправителю записанное сервером состояние микрофона/камеры
	MediaEcho bool `env:"MEDIA_ECHO" envDefault:"false"`

	WebSocket WebSocketConfig
	ICE       ICEConfig
}

type WebSocketConfig struct {
	ReadLimit  int64         `env:"WS_READ_LIMIT" envDefault:"65536"`
	PongWait   time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WriteWait  time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	SendBuffer int           `env:"WS_SEND_BUFFER" envDefault:"256"`

	// RateLimit - сообщений в секунду на одно соединение, 0 отключает ограничение
	RateLimit float64 `env:"WS_RATE_LIMIT" envDefault:"50"`
	RateBurst int     `env:"WS_RATE_BURST" envDefault:"100"`
}

// PingPeriod must be less than PongWait.
func (w WebSocketConfig) PingPeriod() time.Duration {
	return (w.PongWait * 9) / 10
}

type ICEConfig struct {
	STUNURLs []string `env:"STUN_URLS" envSeparator:"," envDefault:"stun:stun.l.google.com:19302"`

	CoturnHost string `env:"COTURN_HOST"`

	// CoturnSecret - static-auth-secret coturn, нужен для генерации временных кредов для клиентов
	CoturnSecret string        `env:"COTURN_SECRET"`
	CoturnTTL    time.Duration `env:"COTURN_TTL" envDefault:"1h"`
}

// TURNEnabled reports whether TURN REST credentials can be issued.
func (i ICEConfig) TURNEnabled() bool {
	return i.CoturnHost != "" && i.CoturnSecret != ""
}

// TURNURLs returns udp and tcp TURN urls for the configured coturn host.
func (i ICEConfig) TURNURLs() []string {
	return []string{
		fmt.Sprintf("turn:%s?transport=udp", i.CoturnHost),
		fmt.Sprintf("turn:%s?transport=tcp", i.CoturnHost),
	}
}

// STUNServer is the credential-less part of the ICE server list.
func (i ICEConfig) STUNServer() webrtc.ICEServer {
	return webrtc.ICEServer{URLs: i.STUNURLs}
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

func (c *Config) validate() error {
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WebSocket.SendBuffer)
	}

	if c.WebSocket.PongWait <= 0 {
		return fmt.Errorf("WS_PONG_WAIT must be positive, got %s", c.WebSocket.PongWait)
	}

	if c.WebSocket.RateLimit < 0 {
		return fmt.Errorf("WS_RATE_LIMIT must not be negative, got %v", c.WebSocket.RateLimit)
	}

	if (c.ICE.CoturnHost == "") != (c.ICE.CoturnSecret == "") {
		return fmt.Errorf("COTURN_HOST and COTURN_SECRET must be set together")
	}

	return nil
}
