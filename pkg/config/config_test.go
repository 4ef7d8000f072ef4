package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"satbathy/internal/models"
	"satbathy/pkg/regression"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	proc, err := cfg.ToProcessing()
	require.NoError(t, err)
	require.Equal(t, models.MethodRF, proc.Method)
	require.Equal(t, -2, proc.Parallelism.Workers)
	require.Equal(t, models.BackendThreading, proc.Parallelism.Backend)
	require.True(t, proc.AutoNegativeSign)
	require.True(t, proc.ExcludeOutOfBounds)
	require.Equal(t, 0.0, proc.LimitUpper)
	require.Equal(t, -30.0, proc.LimitLower)
	require.True(t, cfg.Output.MedianFilter.Enabled)
	require.Equal(t, 3, cfg.Output.MedianFilter.Size)
	require.Empty(t, cfg.Output.PreviewRegion)

	method, err := cfg.MethodConfig()
	require.NoError(t, err)
	require.Equal(t, regression.DefaultRFConfig(), method)
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "satbathy.yaml")
	cfg := DefaultConfig()
	cfg.Processing.Method = "svm"
	cfg.SVM.Kernel = regression.KernelPoly
	cfg.SVM.Degree = 4
	cfg.Limit.Enabled = true
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("processing:\n  method: knn\nknn:\n  neighbors: 9\nlimit:\n  upper: -40\n  lower: -2\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.KNN.Neighbors)
	require.Equal(t, regression.WeightsDistance, cfg.KNN.Weights)
	require.Equal(t, "depth", cfg.Processing.DepthLabel)

	proc, err := cfg.ToProcessing()
	require.NoError(t, err)
	require.Equal(t, models.MethodKNN, proc.Method)
	require.Equal(t, -2.0, proc.LimitUpper, "window is swapped")
	require.Equal(t, -40.0, proc.LimitLower)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing: [\n"), 0644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown method", func(c *Config) { c.Processing.Method = "xgboost" }},
		{"zero workers", func(c *Config) { c.Parallelism.Workers = 0 }},
		{"unknown backend", func(c *Config) { c.Parallelism.Backend = "dask" }},
		{"train fraction", func(c *Config) { c.Processing.TrainFraction = 1.5 }},
		{"even median", func(c *Config) { c.Output.MedianFilter.Enabled = true; c.Output.MedianFilter.Size = 4 }},
		{"large median", func(c *Config) { c.Output.MedianFilter.Enabled = true; c.Output.MedianFilter.Size = 35 }},
		{"short preview region", func(c *Config) { c.Output.PreviewRegion = []int{0, 0, 10} }},
		{"empty preview region", func(c *Config) { c.Output.PreviewRegion = []int{0, 0, 0, 10} }},
		{"negative preview region", func(c *Config) { c.Output.PreviewRegion = []int{-1, 0, 10, 10} }},
		{"raster format", func(c *Config) { c.Output.RasterFormat = "png" }},
		{"table format", func(c *Config) { c.Output.TableFormat = "xlsx" }},
		{"rf trees", func(c *Config) { c.RF.Trees = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), models.ErrConfiguration)
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}
