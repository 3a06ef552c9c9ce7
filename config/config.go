// Package config loads SOC estimator configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/milosgajdos/go-soc/fusion"
	"github.com/milosgajdos/go-soc/internal/logging"
	"github.com/milosgajdos/go-soc/kalman/ukf"
	"github.com/milosgajdos/go-soc/model"
	"github.com/milosgajdos/go-soc/observe"
	"github.com/milosgajdos/go-soc/sim"
	"github.com/milosgajdos/go-soc/source/influx"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment variables overriding config keys
	EnvPrefix = "SOC"
	// DefaultModelPath is the default path of GRU weights
	DefaultModelPath = "models/gru_voltage.json"
)

// Config is the estimator configuration
type Config struct {
	Filter  FilterConfig  `mapstructure:"filter"`
	Battery BatteryConfig `mapstructure:"battery"`
	Window  WindowConfig  `mapstructure:"window"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Model   ModelConfig   `mapstructure:"model"`
	Influx  InfluxConfig  `mapstructure:"influx"`
	Sim     SimConfig     `mapstructure:"sim"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// FilterConfig configures UKF
type FilterConfig struct {
	Alpha      float64 `mapstructure:"alpha"       validate:"gt=0"`
	Beta       float64 `mapstructure:"beta"        validate:"gte=0"`
	Kappa      float64 `mapstructure:"kappa"       validate:"gte=0"`
	Q          float64 `mapstructure:"q"           validate:"gte=0"`
	R          float64 `mapstructure:"r"           validate:"gte=0"`
	P0         float64 `mapstructure:"p0"          validate:"gte=0"`
	InitialSOC float64 `mapstructure:"initial_soc" validate:"gte=0,lte=1"`
}

// RCConfig is a single RC pair
type RCConfig struct {
	R   float64 `mapstructure:"r"   validate:"gt=0"`
	Tau float64 `mapstructure:"tau" validate:"gt=0"`
}

// BatteryConfig configures the process model
type BatteryConfig struct {
	CapacityAh float64    `mapstructure:"capacity_ah" validate:"gt=0"`
	Efficiency float64    `mapstructure:"efficiency"  validate:"gt=0,lte=1"`
	RC         []RCConfig `mapstructure:"rc"          validate:"dive"`
}

// WindowConfig configures feature windows and batching
type WindowConfig struct {
	SeqLen    int `mapstructure:"seq_len"    validate:"gt=0"`
	BatchSize int `mapstructure:"batch_size" validate:"gt=0"`
	Workers   int `mapstructure:"workers"    validate:"gte=0"`
}

// CacheConfig configures telemetry cache
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// ModelConfig configures observation model
type ModelConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=gru double"`
	Path    string `mapstructure:"path"`
}

// InfluxConfig configures InfluxDB telemetry source
type InfluxConfig struct {
	URL         string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	Org         string        `mapstructure:"org"`
	Bucket      string        `mapstructure:"bucket"`
	Measurement string        `mapstructure:"measurement" validate:"required"`
	DeviceTag   string        `mapstructure:"device_tag"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"gte=0"`
	Fields      FieldsConfig  `mapstructure:"fields"`
}

// FieldsConfig maps telemetry columns to InfluxDB fields
type FieldsConfig struct {
	Current     string `mapstructure:"current"     validate:"required"`
	Voltage     string `mapstructure:"voltage"     validate:"required"`
	Temperature string `mapstructure:"temperature" validate:"required"`
	SOC         string `mapstructure:"soc"`
}

// SimConfig configures synthetic discharge source
type SimConfig struct {
	Samples      int           `mapstructure:"samples"       validate:"gt=0"`
	Step         time.Duration `mapstructure:"step"          validate:"gt=0"`
	Current      float64       `mapstructure:"current"`
	InitialSOC   float64       `mapstructure:"initial_soc"   validate:"gte=0,lte=1"`
	OCVEmpty     float64       `mapstructure:"ocv_empty"`
	OCVFull      float64       `mapstructure:"ocv_full"`
	R0           float64       `mapstructure:"r0"            validate:"gte=0"`
	Temperature  float64       `mapstructure:"temperature"`
	VoltageNoise float64       `mapstructure:"voltage_noise" validate:"gte=0"`
	Seed         uint64        `mapstructure:"seed"`
}

// LogConfig configures logging
type LogConfig struct {
	Level      string `mapstructure:"level"       validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format"      validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"    validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age"     validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures Prometheus metrics endpoint
type MetricsConfig struct {
	// Addr is listen address; empty disables the endpoint
	Addr string `mapstructure:"addr"`
}

// Default returns default configuration
func Default() Config {
	p := fusion.DefaultParams()
	f := influx.DefaultConfig()
	s := sim.DefaultConfig()

	return Config{
		Filter: FilterConfig{
			Alpha:      p.Filter.Alpha,
			Beta:       p.Filter.Beta,
			Kappa:      p.Filter.Kappa,
			Q:          p.Q,
			R:          p.R,
			P0:         p.P0,
			InitialSOC: p.InitialSOC,
		},
		Battery: BatteryConfig{
			CapacityAh: p.CapacityAh,
			Efficiency: p.Efficiency,
		},
		Window: WindowConfig{
			SeqLen:    p.SeqLen,
			BatchSize: p.BatchSize,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Model: ModelConfig{
			Backend: observe.BackendGRU,
			Path:    DefaultModelPath,
		},
		Influx: InfluxConfig{
			Bucket:      f.Bucket,
			Measurement: f.Measurement,
			DeviceTag:   f.DeviceTag,
			Timeout:     f.Timeout,
			Fields: FieldsConfig{
				Current:     f.Fields.Current,
				Voltage:     f.Fields.Voltage,
				Temperature: f.Fields.Temperature,
				SOC:         f.Fields.SOC,
			},
		},
		Sim: SimConfig{
			Samples:      s.Samples,
			Step:         s.Step,
			Current:      s.Current,
			InitialSOC:   s.InitialSOC,
			OCVEmpty:     s.OCVEmpty,
			OCVFull:      s.OCVFull,
			R0:           s.R0,
			Temperature:  s.Temperature,
			VoltageNoise: s.VoltageNoise,
			Seed:         s.Seed,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// legacy maps config keys to environment variables read in addition to SOC_ prefixed ones
var legacy = map[string]string{
	"influx.url":    "INFLUXDB_URL",
	"influx.token":  "INFLUXDB_TOKEN",
	"influx.org":    "INFLUXDB_ORG",
	"influx.bucket": "INFLUXDB_BUCKET",
	"model.path":    "SOC_MODEL_PATH",
}

// Load reads configuration from the file at path merged over Default and
// environment variables merged over both. Empty path skips the file.
// Supported file formats are toml, yaml and json.
func Load(path string) (Config, error) {
	v := viper.New()

	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacy {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config error: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config error: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// setDefaults registers every key of c so that env variables override keys missing from the file.
func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("filter.alpha", c.Filter.Alpha)
	v.SetDefault("filter.beta", c.Filter.Beta)
	v.SetDefault("filter.kappa", c.Filter.Kappa)
	v.SetDefault("filter.q", c.Filter.Q)
	v.SetDefault("filter.r", c.Filter.R)
	v.SetDefault("filter.p0", c.Filter.P0)
	v.SetDefault("filter.initial_soc", c.Filter.InitialSOC)

	v.SetDefault("battery.capacity_ah", c.Battery.CapacityAh)
	v.SetDefault("battery.efficiency", c.Battery.Efficiency)

	v.SetDefault("window.seq_len", c.Window.SeqLen)
	v.SetDefault("window.batch_size", c.Window.BatchSize)
	v.SetDefault("window.workers", c.Window.Workers)

	v.SetDefault("cache.enabled", c.Cache.Enabled)
	v.SetDefault("cache.ttl", c.Cache.TTL)

	v.SetDefault("model.backend", c.Model.Backend)
	v.SetDefault("model.path", c.Model.Path)

	v.SetDefault("influx.url", c.Influx.URL)
	v.SetDefault("influx.token", c.Influx.Token)
	v.SetDefault("influx.org", c.Influx.Org)
	v.SetDefault("influx.bucket", c.Influx.Bucket)
	v.SetDefault("influx.measurement", c.Influx.Measurement)
	v.SetDefault("influx.device_tag", c.Influx.DeviceTag)
	v.SetDefault("influx.timeout", c.Influx.Timeout)
	v.SetDefault("influx.fields.current", c.Influx.Fields.Current)
	v.SetDefault("influx.fields.voltage", c.Influx.Fields.Voltage)
	v.SetDefault("influx.fields.temperature", c.Influx.Fields.Temperature)
	v.SetDefault("influx.fields.soc", c.Influx.Fields.SOC)

	v.SetDefault("sim.samples", c.Sim.Samples)
	v.SetDefault("sim.step", c.Sim.Step)
	v.SetDefault("sim.current", c.Sim.Current)
	v.SetDefault("sim.initial_soc", c.Sim.InitialSOC)
	v.SetDefault("sim.ocv_empty", c.Sim.OCVEmpty)
	v.SetDefault("sim.ocv_full", c.Sim.OCVFull)
	v.SetDefault("sim.r0", c.Sim.R0)
	v.SetDefault("sim.temperature", c.Sim.Temperature)
	v.SetDefault("sim.voltage_noise", c.Sim.VoltageNoise)
	v.SetDefault("sim.seed", c.Sim.Seed)

	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("log.max_size", c.Log.MaxSize)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
	v.SetDefault("log.max_age", c.Log.MaxAge)
	v.SetDefault("log.compress", c.Log.Compress)

	v.SetDefault("metrics.addr", c.Metrics.Addr)
}

var validate = validator.New()

// Validate validates c
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Model.Backend == observe.BackendGRU && c.Model.Path == "" {
		return errors.New("config validation failed: model path required for gru backend")
	}

	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Params returns estimation session parameters
func (c Config) Params() fusion.Params {
	var rc []model.RC
	for _, p := range c.Battery.RC {
		rc = append(rc, model.RC{R: p.R, Tau: p.Tau})
	}

	return fusion.Params{
		Filter: ukf.Config{
			Alpha: c.Filter.Alpha,
			Beta:  c.Filter.Beta,
			Kappa: c.Filter.Kappa,
		},
		Q:          c.Filter.Q,
		R:          c.Filter.R,
		P0:         c.Filter.P0,
		InitialSOC: c.Filter.InitialSOC,
		CapacityAh: c.Battery.CapacityAh,
		Efficiency: c.Battery.Efficiency,
		RC:         rc,
		SeqLen:     c.Window.SeqLen,
		BatchSize:  c.Window.BatchSize,
	}
}

// ObserveConfig returns observation model config
func (c Config) ObserveConfig() observe.Config {
	return observe.Config{
		Backend: c.Model.Backend,
		Path:    c.Model.Path,
		Workers: c.Window.Workers,
	}
}

// InfluxConfig returns InfluxDB source config
func (c Config) InfluxConfig() influx.Config {
	return influx.Config{
		URL:         c.Influx.URL,
		Token:       c.Influx.Token,
		Org:         c.Influx.Org,
		Bucket:      c.Influx.Bucket,
		Measurement: c.Influx.Measurement,
		DeviceTag:   c.Influx.DeviceTag,
		Timeout:     c.Influx.Timeout,
		Fields: influx.Fields{
			Current:     c.Influx.Fields.Current,
			Voltage:     c.Influx.Fields.Voltage,
			Temperature: c.Influx.Fields.Temperature,
			SOC:         c.Influx.Fields.SOC,
		},
	}
}

// SimConfig returns synthetic discharge config using the battery parameters of c
func (c Config) SimConfig() sim.Config {
	s := sim.DefaultConfig()
	s.Samples = c.Sim.Samples
	s.Step = c.Sim.Step
	s.Current = c.Sim.Current
	s.InitialSOC = c.Sim.InitialSOC
	s.CapacityAh = c.Battery.CapacityAh
	s.Efficiency = c.Battery.Efficiency
	s.OCVEmpty = c.Sim.OCVEmpty
	s.OCVFull = c.Sim.OCVFull
	s.R0 = c.Sim.R0
	s.Temperature = c.Sim.Temperature
	s.VoltageNoise = c.Sim.VoltageNoise
	s.Seed = c.Sim.Seed

	return s
}

// LogConfig returns logger config
func (c Config) LogConfig() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}
