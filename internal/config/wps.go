package config

import (
	"fmt"
	"net/url"
)

// WPSConfig configures the WPS-1/OGC API-Processes frontend exposed by this
// instance, the job output staging area, and the data-source table used to
// resolve input URLs to ADES endpoints.
type WPSConfig struct {
	URL             string `mapstructure:"url"`
	Path            string `mapstructure:"path"`
	OutputDir       string `mapstructure:"output_dir"`
	OutputURL       string `mapstructure:"output_url"`
	OutputContext   bool   `mapstructure:"output_context"`
	Workdir         string `mapstructure:"workdir"`
	OutputS3Bucket  string `mapstructure:"output_s3_bucket"`
	DataSourcesFile string `mapstructure:"data_sources"`
}

// Validate validates the WPS configuration.
func (w *WPSConfig) Validate() error {
	if w.URL == "" {
		return fmt.Errorf("wps.url is required")
	}
	if _, err := url.Parse(w.URL); err != nil {
		return fmt.Errorf("wps.url is not a valid URL: %w", err)
	}
	if w.OutputDir == "" {
		return fmt.Errorf("wps.output_dir is required")
	}
	if w.OutputURL == "" {
		return fmt.Errorf("wps.output_url is required")
	}
	if w.Workdir == "" {
		return fmt.Errorf("wps.workdir is required")
	}
	return nil
}

// ProcessingConfig selects the operating mode of this instance.
type ProcessingConfig struct {
	Mode string `mapstructure:"mode"`
}

const (
	ModeEMS  = "EMS"
	ModeADES = "ADES"
)

// Validate validates the operating mode.
func (p *ProcessingConfig) Validate() error {
	switch p.Mode {
	case ModeEMS, ModeADES:
		return nil
	default:
		return fmt.Errorf("configuration.mode must be EMS or ADES, got %q", p.Mode)
	}
}

// ContainerConfig configures the local container runner used by ADES-mode
// job dispatch to execute CommandLineTool packages.
type ContainerConfig struct {
	Runtime        string `mapstructure:"runtime"`
	DockerHost     string `mapstructure:"docker_host"`
	Network        string `mapstructure:"network"`
	DefaultTimeout string `mapstructure:"default_timeout"`
	PullPolicy     string `mapstructure:"pull_policy"`
}

// Validate validates the container runner configuration.
func (c *ContainerConfig) Validate() error {
	switch c.Runtime {
	case "docker", "mock":
		return nil
	default:
		return fmt.Errorf("container.runtime must be docker or mock, got %q", c.Runtime)
	}
}
