package monitor_config

import (
	"fmt"
	"strings"
	"time"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/obs"
	"github.com/NordCoder/uptimewatch/internal/probe"
	pg "github.com/NordCoder/uptimewatch/internal/repository/postgres"
	"github.com/NordCoder/uptimewatch/internal/services/monitor"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type LogFile struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type Log struct {
	Level  string  `mapstructure:"level"`
	Pretty bool    `mapstructure:"pretty"`
	File   LogFile `mapstructure:"file"`
}

type Kafka struct {
	Enable         bool          `mapstructure:"enable"`
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	Partitions     int           `mapstructure:"partitions"`
	GroupID        string        `mapstructure:"group_id"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type Probe struct {
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	TCPTimeout      time.Duration `mapstructure:"tcp_timeout"`
	RedisTimeout    time.Duration `mapstructure:"redis_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	VerifyTLS       bool          `mapstructure:"verify_tls"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"`
}

type Monitor struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ErrorCooldown    time.Duration `mapstructure:"error_cooldown"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
}

type RedisSeed struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       *int   `mapstructure:"db"`
}

// TargetSeed describes a target loaded into the in-memory store when the
// monitor runs without a database.
type TargetSeed struct {
	ID              string        `mapstructure:"id"`
	Name            string        `mapstructure:"name"`
	Address         string        `mapstructure:"address"`
	Protocol        string        `mapstructure:"protocol"`
	Group           string        `mapstructure:"group"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	SortOrder       int           `mapstructure:"sort_order"`
	Maintenance     bool          `mapstructure:"maintenance"`
	Redis           *RedisSeed    `mapstructure:"redis"`
}

type Config struct {
	App     App          `mapstructure:"app"`
	Server  Server       `mapstructure:"server"`
	DB      pg.Config    `mapstructure:"db"`
	Kafka   Kafka        `mapstructure:"kafka"`
	OTEL    OTEL         `mapstructure:"otel"`
	Log     Log          `mapstructure:"log"`
	Probe   Probe        `mapstructure:"probe"`
	Monitor Monitor      `mapstructure:"monitor"`
	Targets []TargetSeed `mapstructure:"targets"`
}

// Standalone reports whether the monitor runs on the in-memory store.
func (c *Config) Standalone() bool { return strings.TrimSpace(c.DB.DSN) == "" }

func (c *Config) AsLoggerConfig() obs.LogConfig {
	lc := obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
	if c.Log.File.Path != "" {
		f := c.Log.File
		lc.File = &obs.LogFile{
			Path:       f.Path,
			MaxSizeMB:  f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAgeDays: f.MaxAgeDays,
			Compress:   f.Compress,
		}
	}
	return lc
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	name := c.OTEL.ServiceName
	if name == "" {
		name = c.App.Name
	}
	return &obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: name,
		Version:     c.App.Version,
		Env:         c.App.Env,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

func (p *Probe) AsProbeConfig() probe.Config {
	return probe.Config{
		HTTPTimeout:     p.HTTPTimeout,
		TCPTimeout:      p.TCPTimeout,
		RedisTimeout:    p.RedisTimeout,
		UserAgent:       p.UserAgent,
		VerifyTLS:       p.VerifyTLS,
		FollowRedirects: p.FollowRedirects,
		MaxRedirects:    p.MaxRedirects,
	}
}

func (m *Monitor) AsMonitorConfig() monitor.Config {
	return monitor.Config{
		FailureThreshold: m.FailureThreshold,
		ErrorCooldown:    m.ErrorCooldown,
		PublishTimeout:   m.PublishTimeout,
	}
}

// AsTarget converts the seed into a target. The group is resolved by the
// caller since it needs the store.
func (s *TargetSeed) AsTarget() (target.Target, error) {
	proto, err := target.ParseProtocol(s.Protocol)
	if err != nil {
		return target.Target{}, fmt.Errorf("target %q: %w", s.Name, err)
	}
	t := target.Target{
		ID:                s.ID,
		Name:              s.Name,
		Address:           s.Address,
		Protocol:          proto,
		RefreshIntervalMS: s.RefreshInterval.Milliseconds(),
		RetryIntervalMS:   s.RetryInterval.Milliseconds(),
		SortOrder:         s.SortOrder,
		IsInMaintenance:   s.Maintenance,
	}
	if s.Redis != nil {
		t.Redis = &target.RedisCredentials{
			Username: s.Redis.Username,
			Password: s.Redis.Password,
			DB:       target.RedisDefaultDB,
		}
		if s.Redis.DB != nil {
			t.Redis.DB = *s.Redis.DB
		}
	}
	return t, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
