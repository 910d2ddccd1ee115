// Package config provides configuration loading and management for thermopct.
// Values come from defaults, then an optional YAML file, then PCT_*
// environment variables; command line flags are applied last by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"thermopct/internal/models"
	"thermopct/pkg/coldsub"
	"thermopct/pkg/decompose"
	"thermopct/pkg/normalize"
	"thermopct/pkg/region"
	"thermopct/pkg/video"
	"thermopct/pkg/visualization"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PCT_"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input decoding parameters
	Input struct {
		// Backend selects the frame decoder: ffmpeg, images or gocv
		Backend string `yaml:"backend" env:"BACKEND"`

		// FFmpegPath and FFprobePath override the binaries found on PATH
		FFmpegPath  string `yaml:"ffmpegPath" env:"FFMPEG_PATH"`
		FFprobePath string `yaml:"ffprobePath" env:"FFPROBE_PATH"`
	} `yaml:"input"`

	// Region alignment parameters
	Region struct {
		// ROI is "x,y,width,height"; empty selects the full frame
		ROI string `yaml:"roi" env:"ROI"`

		// BlankThreshold is the mean intensity below which leading frames are skipped
		BlankThreshold float64 `yaml:"blankThreshold" env:"BLANK_THRESHOLD"`

		// Lengths is "independent" or "truncate"
		Lengths string `yaml:"lengths" env:"LENGTHS"`
	} `yaml:"region"`

	// Processing parameters
	Processing struct {
		// Normalization is "none", "standardize" or "row-wise standardize"
		Normalization string `yaml:"normalization" env:"NORMALIZATION"`

		// Epsilon guards the standardization denominator
		Epsilon float64 `yaml:"epsilon" env:"EPSILON"`

		// Strict disables the epsilon guard
		Strict bool `yaml:"strict" env:"STRICT"`

		// Method is "svd", "pca" or "ppt"
		Method string `yaml:"method" env:"METHOD"`
	} `yaml:"processing"`

	// Cold subtraction parameters
	ColdSubtraction struct {
		// Enabled computes the difference map when a before video is given
		Enabled bool `yaml:"enabled" env:"COLD_ENABLED"`

		// Policy is "signed", "clip" or "wrap"
		Policy string `yaml:"policy" env:"COLD_POLICY"`
	} `yaml:"coldSubtraction"`

	// Output parameters
	Output struct {
		// Dir receives the saved maps
		Dir string `yaml:"dir" env:"OUTPUT_DIR"`

		// Prefix is prepended to every output file name; empty uses the run ID
		Prefix string `yaml:"prefix" env:"OUTPUT_PREFIX"`

		// Formats is a comma separated list of png, jpg, tiff, raw
		Formats string `yaml:"formats" env:"OUTPUT_FORMATS"`

		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults" env:"SAVE_INTERMEDIARY"`

		// LogLevel is a zap level name
		LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`
	} `yaml:"output"`
}

// Settings is the validated, typed form of a Config.
type Settings struct {
	Backend       video.Backend
	FFmpeg        video.FFmpegOptions
	ROI           *models.ROI
	Blank         float64
	Lengths       region.LengthPolicy
	Normalization normalize.Policy
	Method        decompose.Method
	Cold          bool
	ColdPolicy    coldsub.Policy
	Formats       []visualization.Format
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Backend = string(video.BackendFFmpeg)

	cfg.Region.BlankThreshold = region.DefaultBlankThreshold
	cfg.Region.Lengths = region.Independent.String()

	cfg.Processing.Normalization = normalize.Standardize.String()
	cfg.Processing.Epsilon = normalize.DefaultEpsilon
	cfg.Processing.Method = decompose.SVD.String()

	cfg.ColdSubtraction.Enabled = true
	cfg.ColdSubtraction.Policy = coldsub.Signed.String()

	cfg.Output.Dir = "output"
	cfg.Output.Formats = "png,raw"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, the defaults are used. An empty path
// skips the file.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any PCT_* variables set in the environment.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	return nil
}

// Validate converts the string options into their typed forms.
func (c *Config) Validate() (*Settings, error) {
	s := &Settings{
		FFmpeg: video.FFmpegOptions{
			FFmpegPath:  c.Input.FFmpegPath,
			FFprobePath: c.Input.FFprobePath,
		},
		Blank: c.Region.BlankThreshold,
		Cold:  c.ColdSubtraction.Enabled,
	}

	var err error
	if s.Backend, err = video.ParseBackend(c.Input.Backend); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Region.ROI) != "" {
		roi, err := models.ParseROI(c.Region.ROI)
		if err != nil {
			return nil, err
		}
		if roi.IsEmpty() {
			return nil, fmt.Errorf("region %s has zero size", roi)
		}
		s.ROI = &roi
	}
	if s.Blank < 0 {
		return nil, fmt.Errorf("blank threshold must be non-negative, got %g", s.Blank)
	}
	if s.Lengths, err = region.ParseLengthPolicy(c.Region.Lengths); err != nil {
		return nil, err
	}

	s.Normalization.Epsilon = c.Processing.Epsilon
	s.Normalization.Strict = c.Processing.Strict
	if s.Normalization.Method, err = normalize.ParseMethod(c.Processing.Normalization); err != nil {
		return nil, err
	}
	if s.Normalization.Epsilon < 0 {
		return nil, fmt.Errorf("epsilon must be non-negative, got %g", s.Normalization.Epsilon)
	}
	if s.Method, err = decompose.ParseMethod(c.Processing.Method); err != nil {
		return nil, err
	}
	if s.ColdPolicy, err = coldsub.ParsePolicy(c.ColdSubtraction.Policy); err != nil {
		return nil, err
	}
	if s.Formats, err = visualization.ParseFormats(c.Output.Formats); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveConfig writes cfg as YAML. The file is written next to configPath and
// renamed into place, so readers never observe a partial configuration.
func SaveConfig(cfg *Config, configPath string) (err error) {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(configPath)+".*")
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), configPath); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile writes the default configuration to configPath. An
// existing file is left untouched and reported as an error.
func CreateDefaultConfigFile(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file %s: %w", configPath, os.ErrExist)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking config file: %w", err)
	}
	return SaveConfig(DefaultConfig(), configPath)
}
