package monitor_config

import (
	"errors"
	"net"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Load reads path (optional) over the defaults, then environment variables
// with dots replaced by underscores, e.g. MONITOR_FAILURE_THRESHOLD.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("app.name", "uptimewatch")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.metrics_addr", ":9100")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")

	v.SetDefault("kafka.enable", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.topic", "uptimewatch.target.updated")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.group_id", "status-tail")
	v.SetDefault("kafka.publish_timeout", "3s")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "uptimewatch")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", LogLevelInfo)
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 50)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 14)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("probe.http_timeout", "15s")
	v.SetDefault("probe.tcp_timeout", "10s")
	v.SetDefault("probe.redis_timeout", "10s")
	v.SetDefault("probe.user_agent", "uptimewatch/1.0")
	v.SetDefault("probe.verify_tls", true)
	v.SetDefault("probe.follow_redirects", true)
	v.SetDefault("probe.max_redirects", 10)

	v.SetDefault("monitor.failure_threshold", 3)
	v.SetDefault("monitor.error_cooldown", "5s")
	v.SetDefault("monitor.publish_timeout", "5s")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Join(ErrConfig("read config "+path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(ErrConfig("invalid configuration"), err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.App, validation.By(func(value interface{}) error {
			a := value.(App)
			return validation.ValidateStruct(&a,
				validation.Field(&a.Name, validation.Required),
			)
		})),
		validation.Field(&c.Log, validation.By(func(value interface{}) error {
			l := value.(Log)
			return validation.ValidateStruct(&l,
				validation.Field(&l.Level, validation.Required,
					validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)),
			)
		})),
		validation.Field(&c.Server, validation.By(func(value interface{}) error {
			s := value.(Server)
			return validation.ValidateStruct(&s,
				validation.Field(&s.HTTPAddr, validation.Required, validation.By(validateHostPort)),
				validation.Field(&s.GRPCAddr, validation.By(validateHostPort)),
				validation.Field(&s.MetricsAddr, validation.By(validateHostPort)),
				validation.Field(&s.GracefulTimeout, validation.Required),
			)
		})),
		validation.Field(&c.Kafka, validation.By(func(value interface{}) error {
			k := value.(Kafka)
			return validation.ValidateStruct(&k,
				validation.Field(&k.Brokers, validation.When(k.Enable, validation.Required)),
				validation.Field(&k.Topic, validation.When(k.Enable, validation.Required)),
			)
		})),
		validation.Field(&c.Probe, validation.By(func(value interface{}) error {
			p := value.(Probe)
			return validation.ValidateStruct(&p,
				validation.Field(&p.HTTPTimeout, validation.Required),
				validation.Field(&p.TCPTimeout, validation.Required),
				validation.Field(&p.RedisTimeout, validation.Required),
				validation.Field(&p.MaxRedirects, validation.Min(0)),
			)
		})),
		validation.Field(&c.Monitor, validation.By(func(value interface{}) error {
			m := value.(Monitor)
			return validation.ValidateStruct(&m,
				validation.Field(&m.FailureThreshold, validation.Required, validation.Min(1)),
				validation.Field(&m.ErrorCooldown, validation.Required),
			)
		})),
		validation.Field(&c.Targets, validation.Each(validation.By(validateSeed))),
	)
}

func validateSeed(value interface{}) error {
	s, ok := value.(TargetSeed)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a TargetSeed")
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required),
		validation.Field(&s.Address, validation.Required),
		validation.Field(&s.Protocol, validation.Required, validation.By(func(value interface{}) error {
			if _, err := target.ParseProtocol(value.(string)); err != nil {
				return validation.NewError("validation_invalid_protocol", "must be http, tcp or redis")
			}
			return nil
		})),
		validation.Field(&s.RefreshInterval, validation.Min(0)),
		validation.Field(&s.RetryInterval, validation.Min(0)),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if addr == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}
	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}
	return nil
}
