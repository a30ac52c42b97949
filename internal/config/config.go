package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is constructed once at
// startup and passed by parameter; no component reads configuration globals.
type Config struct {
	Projects ProjectsConfig `yaml:"projects" mapstructure:"projects"`
	Inputs   InputsConfig   `yaml:"inputs" mapstructure:"inputs"`
	Schema   SchemaConfig   `yaml:"schema" mapstructure:"schema"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ProjectsConfig configures project-unit discovery and selection.
type ProjectsConfig struct {
	// BaseDir is the directory whose subdirectories are project units.
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`
	// Include selects units by name; the single value "all" selects every
	// discovered unit.
	Include []string `yaml:"include" mapstructure:"include"`
	// InputSubdir and OutputSubdir are resolved relative to each unit.
	InputSubdir  string `yaml:"input_subdir" mapstructure:"input_subdir"`
	OutputSubdir string `yaml:"output_subdir" mapstructure:"output_subdir"`
}

// InputsConfig names the per-project input files.
type InputsConfig struct {
	BoundaryFile   string `yaml:"boundary_file" mapstructure:"boundary_file"`
	AttributesFile string `yaml:"attributes_file" mapstructure:"attributes_file"`
	PointsFile     string `yaml:"points_file" mapstructure:"points_file"`
	// JoinKey is the shared key column joining attributes onto boundaries.
	JoinKey string `yaml:"join_key" mapstructure:"join_key"`
	// ShiftJIS decodes attribute CSVs from Shift_JIS before parsing.
	ShiftJIS bool `yaml:"shift_jis" mapstructure:"shift_jis"`
	// XLSXSheet names the worksheet when the attributes file is .xlsx;
	// empty selects the first sheet.
	XLSXSheet string `yaml:"xlsx_sheet" mapstructure:"xlsx_sheet"`
}

// SchemaConfig holds the name-fragment search terms used to bind logical
// roles to the attribute table's columns. Census and municipal downloads vary
// their exact column names release to release; fragments absorb that drift.
type SchemaConfig struct {
	// NumeratorSubstring locates the rate numerator (population count, or
	// the subgroup count in percentage mode).
	NumeratorSubstring string `yaml:"numerator_substring" mapstructure:"numerator_substring"`
	// DenominatorSubstring locates the total column in percentage mode.
	DenominatorSubstring string `yaml:"denominator_substring" mapstructure:"denominator_substring"`
	// ExcludeSubstrings disqualify candidates, typically the join key and
	// previously derived fields.
	ExcludeSubstrings []string `yaml:"exclude_substrings" mapstructure:"exclude_substrings"`

	// TotalSubstring, SubgroupSubstrings, and SecondarySubstring bind the
	// diversity-index columns.
	TotalSubstring     string   `yaml:"total_substring" mapstructure:"total_substring"`
	SubgroupSubstrings []string `yaml:"subgroup_substrings" mapstructure:"subgroup_substrings"`
	SecondarySubstring string   `yaml:"secondary_substring" mapstructure:"secondary_substring"`
}

// AnalysisConfig holds the numeric thresholds of the pipeline.
type AnalysisConfig struct {
	// Mode is "density" (population / area) or "percentage" (subgroup % of total).
	Mode string `yaml:"mode" mapstructure:"mode"`
	// CapPercentile clamps per-region rates at this percentile of the run.
	CapPercentile float64 `yaml:"cap_percentile" mapstructure:"cap_percentile"`
	// EpsilonFloor guards rate denominators against a zero the region
	// itself reports.
	EpsilonFloor float64 `yaml:"epsilon_floor" mapstructure:"epsilon_floor"`
	// SanitizeThreshold resets diversity values at or above it to zero.
	SanitizeThreshold float64 `yaml:"sanitize_threshold" mapstructure:"sanitize_threshold"`
	// HotspotBandMeters is the fixed-distance band for spatial weights.
	HotspotBandMeters float64 `yaml:"hotspot_band_meters" mapstructure:"hotspot_band_meters"`
	// Metric is "planar" for projected data or "geodesic" for lon/lat.
	Metric string `yaml:"metric" mapstructure:"metric"`
	// RandomSeed fixes the control-point generator for reproducible runs.
	RandomSeed int64 `yaml:"random_seed" mapstructure:"random_seed"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROXIMITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("projects.base_dir", ".")
	v.SetDefault("projects.include", []string{"all"})
	v.SetDefault("projects.input_subdir", "inputs")
	v.SetDefault("projects.output_subdir", "output")
	v.SetDefault("inputs.boundary_file", "MunicipalBoundaries.shp")
	v.SetDefault("inputs.attributes_file", "PopulationData.csv")
	v.SetDefault("inputs.points_file", "PointLocations.shp")
	v.SetDefault("inputs.join_key", "ADM2_EN")
	v.SetDefault("inputs.xlsx_sheet", "")
	v.SetDefault("schema.numerator_substring", "Pop")
	v.SetDefault("schema.denominator_substring", "POP_TOTAL")
	v.SetDefault("schema.exclude_substrings", []string{"ADM2_EN", "area_km2"})
	v.SetDefault("schema.total_substring", "POP")
	v.SetDefault("schema.subgroup_substrings", []string{"WHITE", "BLACK", "AMERI", "ASIAN", "HAWN", "OTHER"})
	v.SetDefault("schema.secondary_substring", "HISPANIC")
	v.SetDefault("analysis.mode", "density")
	v.SetDefault("analysis.cap_percentile", 99)
	v.SetDefault("analysis.epsilon_floor", 1e-9)
	v.SetDefault("analysis.sanitize_threshold", 0.999)
	v.SetDefault("analysis.hotspot_band_meters", 1500)
	v.SetDefault("analysis.metric", "planar")
	v.SetDefault("analysis.random_seed", 42)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "proximity-runs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
