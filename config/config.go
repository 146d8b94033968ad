package config

import (
	"os"
	"strings"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Reliable transport kinds.
const (
	TransportTCP = "tcp"
	TransportKCP = "kcp"
	TransportWS  = "ws"
)

// Config holds every tunable of the sync core. Durations are milliseconds so
// the same values work in YAML and environment variables.
type Config struct {
	// Connection target
	Host      string `yaml:"host" config:"SYNC_HOST"`
	TCPPort   int    `yaml:"tcp_port" config:"SYNC_TCP_PORT"`
	UDPPort   int    `yaml:"udp_port" config:"SYNC_UDP_PORT"`
	Transport string `yaml:"transport" config:"SYNC_TRANSPORT"` // tcp, kcp or ws

	// Session
	PlayerName    string `yaml:"player_name" config:"SYNC_PLAYER_NAME"`
	ClientVersion string `yaml:"client_version" config:"SYNC_CLIENT_VERSION"`
	LevelPath     string `yaml:"level_path" config:"SYNC_LEVEL_PATH"` // optional TMX for bounds and solids
	LogLevel      string `yaml:"log_level" config:"SYNC_LOG_LEVEL"`

	// Sockets
	DialTimeoutMs    int `yaml:"dial_timeout_ms" config:"SYNC_DIAL_TIMEOUT_MS"`
	PollTimeoutMs    int `yaml:"poll_timeout_ms" config:"SYNC_POLL_TIMEOUT_MS"`
	WriteTimeoutMs   int `yaml:"write_timeout_ms" config:"SYNC_WRITE_TIMEOUT_MS"`
	MaxFrameBytes    int `yaml:"max_frame_bytes" config:"SYNC_MAX_FRAME_BYTES"`
	MaxDatagramBytes int `yaml:"max_datagram_bytes" config:"SYNC_MAX_DATAGRAM_BYTES"`
	EventBuffer      int `yaml:"event_buffer" config:"SYNC_EVENT_BUFFER"`

	// Simulation and prediction
	TickRate     int     `yaml:"tick_rate" config:"SYNC_TICK_RATE"` // local simulation steps per second
	MoveSpeed    float64 `yaml:"move_speed" config:"SYNC_MOVE_SPEED"` // world units per second
	BodyWidth    float64 `yaml:"body_width" config:"SYNC_BODY_WIDTH"`
	BodyHeight   float64 `yaml:"body_height" config:"SYNC_BODY_HEIGHT"`
	WorldWidth   float64 `yaml:"world_width" config:"SYNC_WORLD_WIDTH"` // overridden by the level when one is loaded
	WorldHeight  float64 `yaml:"world_height" config:"SYNC_WORLD_HEIGHT"`
	MaxChunkMs   int     `yaml:"max_chunk_ms" config:"SYNC_MAX_CHUNK_MS"`
	MaxPending   int     `yaml:"max_pending" config:"SYNC_MAX_PENDING"`
	ResyncIdleMs int     `yaml:"resync_idle_ms" config:"SYNC_RESYNC_IDLE_MS"` // 0 disables automatic resync requests

	// Interpolation
	RetentionMs        int     `yaml:"retention_ms" config:"SYNC_RETENTION_MS"`
	MaxExtrapolationMs int     `yaml:"max_extrapolation_ms" config:"SYNC_MAX_EXTRAPOLATION_MS"`
	MaxSpeedMultiple   float64 `yaml:"max_speed_multiple" config:"SYNC_MAX_SPEED_MULTIPLE"` // 0 disables velocity clamping
	AttackEstimateMs   int     `yaml:"attack_estimate_ms" config:"SYNC_ATTACK_ESTIMATE_MS"`

	// Clock
	OffsetWeight     float64 `yaml:"offset_weight" config:"SYNC_OFFSET_WEIGHT"`
	RTTWeight        float64 `yaml:"rtt_weight" config:"SYNC_RTT_WEIGHT"`
	DefaultRTTMs     float64 `yaml:"default_rtt_ms" config:"SYNC_DEFAULT_RTT_MS"`
	RenderDelayBase  float64 `yaml:"render_delay_base_ms" config:"SYNC_RENDER_DELAY_BASE_MS"`
	RenderDelayMinMs float64 `yaml:"render_delay_min_ms" config:"SYNC_RENDER_DELAY_MIN_MS"`
	RenderDelayMaxMs float64 `yaml:"render_delay_max_ms" config:"SYNC_RENDER_DELAY_MAX_MS"`
}

// Default returns the tuned defaults.
func Default() Config {
	return Config{
		Host:      "127.0.0.1",
		TCPPort:   7373,
		UDPPort:   7374,
		Transport: TransportTCP,

		PlayerName:    "player",
		ClientVersion: "dev",
		LogLevel:      "info",

		DialTimeoutMs:    5000,
		PollTimeoutMs:    100,
		WriteTimeoutMs:   1000,
		MaxFrameBytes:    1 << 20,
		MaxDatagramBytes: 64 * 1024,
		EventBuffer:      256,

		TickRate:     60,
		MoveSpeed:    120,
		BodyWidth:    16,
		BodyHeight:   16,
		WorldWidth:   2048,
		WorldHeight:  2048,
		MaxChunkMs:   100,
		MaxPending:   256,
		ResyncIdleMs: 3000,

		RetentionMs:        500,
		MaxExtrapolationMs: 150,
		MaxSpeedMultiple:   3,
		AttackEstimateMs:   300,

		OffsetWeight:     0.1,
		RTTWeight:        0.2,
		DefaultRTTMs:     120,
		RenderDelayBase:  50,
		RenderDelayMinMs: 80,
		RenderDelayMaxMs: 220,
	}
}

// Load applies defaults, then the YAML file at path (if non-empty), then
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, eris.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, eris.Wrapf(err, "parse config %s", path)
		}
	}
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return cfg, eris.Wrap(err, "read environment")
	}
	cfg.Transport = strings.ToLower(cfg.Transport)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = eris.New("invalid config")

// Validate rejects values the core cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return eris.Wrap(ErrInvalid, "host is empty")
	case c.TCPPort <= 0 || c.TCPPort > 65535:
		return eris.Wrapf(ErrInvalid, "tcp_port %d out of range", c.TCPPort)
	case c.UDPPort <= 0 || c.UDPPort > 65535:
		return eris.Wrapf(ErrInvalid, "udp_port %d out of range", c.UDPPort)
	case c.Transport != TransportTCP && c.Transport != TransportKCP && c.Transport != TransportWS:
		return eris.Wrapf(ErrInvalid, "unknown transport %q", c.Transport)
	case c.PollTimeoutMs <= 0 || c.WriteTimeoutMs <= 0 || c.DialTimeoutMs <= 0:
		return eris.Wrap(ErrInvalid, "socket timeouts must be positive")
	case c.MaxFrameBytes <= 0 || c.MaxDatagramBytes <= 0:
		return eris.Wrap(ErrInvalid, "size limits must be positive")
	case c.TickRate <= 0:
		return eris.Wrapf(ErrInvalid, "tick_rate %d", c.TickRate)
	case c.MoveSpeed <= 0:
		return eris.Wrap(ErrInvalid, "move_speed must be positive")
	case c.MaxChunkMs <= 0:
		return eris.Wrap(ErrInvalid, "max_chunk_ms must be positive")
	case c.RetentionMs <= 0 || c.MaxExtrapolationMs < 0:
		return eris.Wrap(ErrInvalid, "interpolation windows out of range")
	case c.OffsetWeight <= 0 || c.OffsetWeight > 1 || c.RTTWeight <= 0 || c.RTTWeight > 1:
		return eris.Wrap(ErrInvalid, "smoothing weights must be in (0,1]")
	case c.RenderDelayMinMs > c.RenderDelayMaxMs:
		return eris.Wrapf(ErrInvalid, "render delay min %.0f > max %.0f", c.RenderDelayMinMs, c.RenderDelayMaxMs)
	}
	return nil
}
