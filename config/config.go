// Package config describes a tool run and turns it into a tools.Tool.
package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "GEOPROCESS"

// Config is one tool run.
type Config struct {
	Tool        string   `mapstructure:"tool"`
	Input       string   `mapstructure:"input"`
	Overlay     string   `mapstructure:"overlay"`
	Output      string   `mapstructure:"output"`
	Report      string   `mapstructure:"report"`
	PrimaryKeys []string `mapstructure:"primary_keys"`
	Workers     int      `mapstructure:"workers"`
	Log         Log      `mapstructure:"log"`
	Params      Params   `mapstructure:"params"`
}

// Log configures the logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Params are the tool parameters. Each tool reads the subset it understands.
type Params struct {
	OutputFields string  `mapstructure:"output_fields"`
	OutputCRS    string  `mapstructure:"output_crs"`
	SelectedOnly bool    `mapstructure:"selected_only"`
	Selected     []int64 `mapstructure:"selected"`

	// buffer
	Distance      float64 `mapstructure:"distance"`
	DistanceField string  `mapstructure:"distance_field"`
	Segments      int     `mapstructure:"segments"`
	EndCap        string  `mapstructure:"end_cap"`
	Join          string  `mapstructure:"join"`
	MitreLimit    float64 `mapstructure:"mitre_limit"`
	SingleSided   bool    `mapstructure:"single_sided"`
	Side          string  `mapstructure:"side"`

	// dissolve, convexhull
	GroupBy           string  `mapstructure:"group_by"`
	GroupField        string  `mapstructure:"group_field"`
	GroupExpression   string  `mapstructure:"group_expression"`
	NumericSummary    string  `mapstructure:"numeric_summary"`
	NonNumericSummary string  `mapstructure:"non_numeric_summary"`
	AllowMultipart    bool    `mapstructure:"allow_multipart"`
	BufferDistance    float64 `mapstructure:"buffer_distance"`

	// eliminate
	AreaThreshold float64 `mapstructure:"area_threshold"`
	MergeMethod   string  `mapstructure:"merge_method"`
	Tolerance     float64 `mapstructure:"tolerance"`
}

// SetDefaults registers the default value of every option on v. Keys without
// a default are invisible to environment lookup.
func SetDefaults(v *viper.Viper) {
	for _, key := range []string{"tool", "input", "overlay", "output", "report"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("primary_keys", []string{})
	v.SetDefault("workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("params.output_fields", "both")
	v.SetDefault("params.output_crs", "a")
	v.SetDefault("params.segments", 8)
	v.SetDefault("params.end_cap", "round")
	v.SetDefault("params.join", "round")
	v.SetDefault("params.mitre_limit", 2.0)
	v.SetDefault("params.side", "left")
	v.SetDefault("params.group_by", "all")
	v.SetDefault("params.numeric_summary", "first")
	v.SetDefault("params.non_numeric_summary", "first")
	v.SetDefault("params.merge_method", "area")
	for _, key := range []string{"distance", "buffer_distance", "area_threshold", "tolerance"} {
		v.SetDefault("params."+key, 0.0)
	}
	for _, key := range []string{"distance_field", "group_field", "group_expression"} {
		v.SetDefault("params."+key, "")
	}
	for _, key := range []string{"selected_only", "single_sided", "allow_multipart"} {
		v.SetDefault("params."+key, false)
	}
}

// New returns a viper instance with defaults and environment lookup set up.
// Nested keys map to variables like GEOPROCESS_PARAMS_DISTANCE.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges the configuration file at path into v. An empty path is
// not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("problem reading configuration file: %w", err)
	}
	return nil
}

// Load decodes v into a Config.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	return c, nil
}

// DecodeParams decodes loosely typed parameters, such as a JSON request body,
// on top of the defaults.
func DecodeParams(m map[string]any) (Params, error) {
	v := viper.New()
	SetDefaults(v)
	if err := v.MergeConfigMap(map[string]any{"params": m}); err != nil {
		return Params{}, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Params{}, fmt.Errorf("decoding parameters: %w", err)
	}
	return c.Params, nil
}

// Logger builds a logrus logger from the log settings.
func (l Log) Logger() (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch strings.ToLower(l.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", l.Format)
	}
	return log, nil
}
