// Package config provides configuration loading and management for brainviewer.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"brainviewer/internal/models"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// API configures the connection to the imaging service
	API struct {
		// BaseURL is the root of the imaging service, e.g. http://localhost:5000
		BaseURL string `yaml:"baseURL"`

		// Token is the bearer credential attached to every request
		Token string `yaml:"token"`

		// RequestTimeout bounds ordinary calls such as slice and mesh fetches
		RequestTimeout time.Duration `yaml:"requestTimeout"`

		// ExportTimeout bounds long running exports
		ExportTimeout time.Duration `yaml:"exportTimeout"`
	} `yaml:"api"`

	// Viewer configures the 2D slice canvas and session
	Viewer struct {
		// GridSpacing is the distance in raw pixels between grid lines
		GridSpacing int `yaml:"gridSpacing"`

		// CrosshairDash is the dash pattern of the crosshair lines
		CrosshairDash []float64 `yaml:"crosshairDash"`

		Window struct {
			Level float64 `yaml:"level"`
			Width float64 `yaml:"width"`
		} `yaml:"window"`

		Contrast   float64 `yaml:"contrast"`
		Brightness float64 `yaml:"brightness"`
		Colormap   string  `yaml:"colormap"`

		// LesionOpacity is the blend factor of the lesion overlay on the brain slice
		LesionOpacity float64 `yaml:"lesionOpacity"`

		// DiscardStaleSlices drops slice responses older than the latest request
		// for the same role; when false the last response to arrive wins
		DiscardStaleSlices bool `yaml:"discardStaleSlices"`

		// LabelSize is the font size of measurement labels in points
		LabelSize float64 `yaml:"labelSize"`
	} `yaml:"viewer"`

	// Scene configures the 3D viewer
	Scene struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
		FPS    int `yaml:"fps"`

		// PointCap is the maximum number of lesion spheres drawn
		PointCap       int     `yaml:"pointCap"`
		SphereRadius   float64 `yaml:"sphereRadius"`
		SphereSegments int     `yaml:"sphereSegments"`

		// MinDistance and MaxDistance clamp the orbit radius
		MinDistance float64 `yaml:"minDistance"`
		MaxDistance float64 `yaml:"maxDistance"`

		AutoRotate      bool    `yaml:"autoRotate"`
		AutoRotateSpeed float64 `yaml:"autoRotateSpeed"`
		RotateSpeed     float64 `yaml:"rotateSpeed"`
		FOV             float64 `yaml:"fov"`

		BrainColor    string  `yaml:"brainColor"`
		BrainOpacity  float64 `yaml:"brainOpacity"`
		LesionColor   string  `yaml:"lesionColor"`
		LesionOpacity float64 `yaml:"lesionOpacity"`
		Wireframe     bool    `yaml:"wireframe"`
	} `yaml:"scene"`

	// Mesh holds the parameters sent with mesh fetches and exports
	Mesh struct {
		Threshold float64 `yaml:"threshold"`
		Smoothing float64 `yaml:"smoothing"`
		UseCache  bool    `yaml:"useCache"`
		Format    string  `yaml:"format"`
	} `yaml:"mesh"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// LogLevel is a zerolog level name
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.API.BaseURL = "http://localhost:5000"
	cfg.API.RequestTimeout = 30 * time.Second
	cfg.API.ExportTimeout = 2 * time.Minute

	cfg.Viewer.GridSpacing = 50
	cfg.Viewer.CrosshairDash = []float64{5, 5}
	cfg.Viewer.Window.Level = 40
	cfg.Viewer.Window.Width = 80
	cfg.Viewer.Contrast = 1
	cfg.Viewer.Brightness = 0
	cfg.Viewer.Colormap = "gray"
	cfg.Viewer.LesionOpacity = 0.5
	cfg.Viewer.DiscardStaleSlices = true
	cfg.Viewer.LabelSize = 12

	cfg.Scene.Width = 800
	cfg.Scene.Height = 600
	cfg.Scene.FPS = 60
	cfg.Scene.PointCap = 5000
	cfg.Scene.SphereRadius = 1.5
	cfg.Scene.SphereSegments = 8
	cfg.Scene.MinDistance = 10
	cfg.Scene.MaxDistance = 1000
	cfg.Scene.AutoRotateSpeed = 0.01
	cfg.Scene.RotateSpeed = 0.005
	cfg.Scene.FOV = 75
	cfg.Scene.BrainColor = "#ffc0cb"
	cfg.Scene.BrainOpacity = 0.8
	cfg.Scene.LesionColor = "#ff0000"
	cfg.Scene.LesionOpacity = 1

	cfg.Mesh.Threshold = 0.1
	cfg.Mesh.Smoothing = 1.0
	cfg.Mesh.UseCache = true
	cfg.Mesh.Format = "stl"

	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate checks the values that would otherwise break rendering
func (c *Config) Validate() error {
	var errs []error
	if c.Viewer.GridSpacing <= 0 {
		errs = append(errs, errors.New("viewer.gridSpacing must be positive"))
	}
	if _, err := models.ParseColormap(c.Viewer.Colormap); err != nil {
		errs = append(errs, fmt.Errorf("viewer.colormap: %w", err))
	}
	if c.Scene.PointCap <= 0 {
		errs = append(errs, errors.New("scene.pointCap must be positive"))
	}
	if c.Scene.FPS <= 0 {
		errs = append(errs, errors.New("scene.fps must be positive"))
	}
	if c.Scene.MinDistance <= 0 || c.Scene.MinDistance >= c.Scene.MaxDistance {
		errs = append(errs, fmt.Errorf("scene distance range [%g, %g] is invalid", c.Scene.MinDistance, c.Scene.MaxDistance))
	}
	if c.API.RequestTimeout <= 0 || c.API.ExportTimeout <= 0 {
		errs = append(errs, errors.New("api timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// DisplaySettings returns the initial display settings described by the viewer section
func (c *Config) DisplaySettings() models.DisplaySettings {
	cmap, err := models.ParseColormap(c.Viewer.Colormap)
	if err != nil {
		cmap = models.Gray
	}
	return models.DisplaySettings{
		Level:      c.Viewer.Window.Level,
		Width:      c.Viewer.Window.Width,
		Contrast:   c.Viewer.Contrast,
		Brightness: c.Viewer.Brightness,
		Colormap:   cmap,
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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
