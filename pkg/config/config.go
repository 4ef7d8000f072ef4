// Package config provides configuration loading and management for satbathy.
// It handles loading configuration from YAML files and provides default values
// for every option.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"satbathy/internal/models"
	"satbathy/pkg/regression"
)

// Raster export formats
const (
	RasterFormatNative = "native"
	RasterFormatASCII  = "ascii"
)

// Table export formats
const (
	TableFormatCSV     = "csv"
	TableFormatGeoJSON = "geojson"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// DepthLabel is the sample attribute holding measured depth
		DepthLabel string `yaml:"depthLabel"`

		// TrainFraction is the share of sampled rows used to fit the model
		TrainFraction float64 `yaml:"trainFraction"`

		// Method is one of knn, mlr, rf or svm
		Method string `yaml:"method"`

		// AutoNegativeSign flips positive-down depths to negative
		AutoNegativeSign bool `yaml:"autoNegativeSign"`

		// ExcludeOutOfBounds drops samples outside the raster extent
		ExcludeOutOfBounds bool `yaml:"excludeOutOfBounds"`
	} `yaml:"processing"`

	// Limit is the depth window applied to samples and predictions
	Limit struct {
		Enabled bool    `yaml:"enabled"`
		Upper   float64 `yaml:"upper"`
		Lower   float64 `yaml:"lower"`
	} `yaml:"limit"`

	// Parallelism holds performance hints; they never change results
	Parallelism struct {
		// Backend is threading or sequential
		Backend string `yaml:"backend"`

		// Workers is the pool size, negative counts back from the CPU count
		Workers int `yaml:"workers"`

		// RandomSeed drives the train/test split
		RandomSeed int64 `yaml:"randomSeed"`
	} `yaml:"parallelism"`

	// Samples describes how CSV sample files are read
	Samples struct {
		XColumn string `yaml:"xColumn"`
		YColumn string `yaml:"yColumn"`
		CRS     string `yaml:"crs"`
	} `yaml:"samples"`

	// Method hyper-parameters, only the section of the selected method is used
	KNN regression.KNNConfig `yaml:"knn"`
	MLR regression.MLRConfig `yaml:"mlr"`
	RF  regression.RFConfig  `yaml:"rf"`
	SVM regression.SVMConfig `yaml:"svm"`

	// Output parameters
	Output struct {
		MedianFilter struct {
			Enabled bool `yaml:"enabled"`
			// Size is the odd window width, 3 to 33
			Size int `yaml:"size"`
		} `yaml:"medianFilter"`

		// RasterFormat is native or ascii
		RasterFormat string `yaml:"rasterFormat"`

		// TableFormat is csv or geojson
		TableFormat string `yaml:"tableFormat"`

		// Report writes the text report next to the prediction
		Report bool `yaml:"report"`

		// Plot writes the measured-vs-predicted scatter plot
		Plot bool `yaml:"plot"`

		// Preview writes a grayscale PNG of the prediction
		Preview bool `yaml:"preview"`

		// PreviewRegion crops the preview to col, row, width, height pixels;
		// empty renders the whole grid
		PreviewRegion []int `yaml:"previewRegion,omitempty"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.DepthLabel = "depth"
	cfg.Processing.TrainFraction = 0.75
	cfg.Processing.Method = models.MethodRF.Key()
	cfg.Processing.AutoNegativeSign = true
	cfg.Processing.ExcludeOutOfBounds = true

	cfg.Limit.Enabled = false
	cfg.Limit.Upper = 0
	cfg.Limit.Lower = -30

	// Use all cores but one by default
	cfg.Parallelism.Backend = string(models.BackendThreading)
	cfg.Parallelism.Workers = -2
	cfg.Parallelism.RandomSeed = 0

	cfg.Samples.XColumn = "x"
	cfg.Samples.YColumn = "y"
	cfg.Samples.CRS = "EPSG:4326"

	// Set default method parameters
	cfg.KNN = regression.DefaultKNNConfig()
	cfg.MLR = regression.DefaultMLRConfig()
	cfg.RF = regression.DefaultRFConfig()
	cfg.SVM = regression.DefaultSVMConfig()

	// Set default output parameters
	cfg.Output.MedianFilter.Enabled = true
	cfg.Output.MedianFilter.Size = 3
	cfg.Output.RasterFormat = RasterFormatNative
	cfg.Output.TableFormat = TableFormatCSV
	cfg.Output.Report = true
	cfg.Output.Plot = true
	cfg.Output.Preview = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML over the defaults so partial files keep the other values
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks every section that a run depends on.
func (c *Config) Validate() error {
	proc, err := c.ToProcessing()
	if err != nil {
		return err
	}
	if err := proc.Validate(); err != nil {
		return err
	}
	method, err := c.MethodConfig()
	if err != nil {
		return err
	}
	if err := method.Validate(); err != nil {
		return err
	}

	size := c.Output.MedianFilter.Size
	if c.Output.MedianFilter.Enabled && (size < 3 || size > 33 || size%2 == 0) {
		return fmt.Errorf("%w: median filter size must be odd and within 3..33, got %d", models.ErrConfiguration, size)
	}
	if r := c.Output.PreviewRegion; len(r) > 0 {
		if len(r) != 4 || r[0] < 0 || r[1] < 0 || r[2] <= 0 || r[3] <= 0 {
			return fmt.Errorf("%w: preview region must be col,row,width,height with a positive size, got %v",
				models.ErrConfiguration, r)
		}
	}
	switch c.Output.RasterFormat {
	case RasterFormatNative, RasterFormatASCII:
	default:
		return fmt.Errorf("%w: unknown raster format %q", models.ErrConfiguration, c.Output.RasterFormat)
	}
	switch c.Output.TableFormat {
	case TableFormatCSV, TableFormatGeoJSON:
	default:
		return fmt.Errorf("%w: unknown table format %q", models.ErrConfiguration, c.Output.TableFormat)
	}
	return nil
}

// ToProcessing converts the file sections into the options of a run.
func (c *Config) ToProcessing() (models.ProcessingConfig, error) {
	method, err := models.ParseMethod(c.Processing.Method)
	if err != nil {
		return models.ProcessingConfig{}, err
	}
	backend, err := models.ParseBackend(c.Parallelism.Backend)
	if err != nil {
		return models.ProcessingConfig{}, err
	}
	return models.ProcessingConfig{
		DepthLabel:    c.Processing.DepthLabel,
		TrainFraction: c.Processing.TrainFraction,
		LimitEnabled:  c.Limit.Enabled,
		LimitUpper:    c.Limit.Upper,
		LimitLower:    c.Limit.Lower,
		Method:        method,
		Parallelism: models.Parallelism{
			Backend:    backend,
			Workers:    c.Parallelism.Workers,
			RandomSeed: c.Parallelism.RandomSeed,
		},
		AutoNegativeSign:   c.Processing.AutoNegativeSign,
		ExcludeOutOfBounds: c.Processing.ExcludeOutOfBounds,
	}.Normalized(), nil
}

// MethodConfig returns the hyper-parameters of the selected method.
func (c *Config) MethodConfig() (regression.MethodConfig, error) {
	method, err := models.ParseMethod(c.Processing.Method)
	if err != nil {
		return nil, err
	}
	switch method {
	case models.MethodKNN:
		return c.KNN, nil
	case models.MethodMLR:
		return c.MLR, nil
	case models.MethodRF:
		return c.RF, nil
	case models.MethodSVM:
		return c.SVM, nil
	}
	return nil, fmt.Errorf("%w: unknown method %q", models.ErrConfiguration, c.Processing.Method)
}
