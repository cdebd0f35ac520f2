package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML settings file. Secrets are read from the
// environment only.
type fileConfig struct {
	Env    string `yaml:"env"`
	Server struct {
		Port             string   `yaml:"port"`
		CORSAllowOrigins []string `yaml:"cors_allow_origins"`
	} `yaml:"server"`
	Storage struct {
		ObjectStore string `yaml:"object_store"`
		LocalDir    string `yaml:"local_dir"`
		AWSRegion   string `yaml:"aws_region"`
		S3Bucket    string `yaml:"s3_bucket"`
		S3Prefix    string `yaml:"s3_prefix"`
	} `yaml:"storage"`
	LLM struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"llm"`
	Gate struct {
		MaxConcurrent         *int     `yaml:"max_concurrent"`
		MaxRetries            *int     `yaml:"max_retries"`
		InitialBackoffSeconds *float64 `yaml:"initial_backoff_seconds"`
		PerCallTimeoutSeconds *float64 `yaml:"per_call_timeout_seconds"`
		Adaptive              *bool    `yaml:"adaptive"`
	} `yaml:"gate"`
	Search struct {
		MaxResultsOverride *int `yaml:"max_results_override"`
	} `yaml:"search"`
	Quota struct {
		RunsPerIPPerDay *int `yaml:"runs_per_ip_per_day"`
		RunsPerDay      *int `yaml:"runs_per_day"`
	} `yaml:"quota"`
}

// loadFile reads path. An empty path yields zero settings; a named file that
// is missing or malformed is a configuration error.
func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fc, fmt.Errorf("%w: config file %s not found", ErrConfiguration, path)
		}
		return fc, fmt.Errorf("%w: read %s: %w", ErrConfiguration, path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("%w: parse %s: %w", ErrConfiguration, path, err)
	}
	return fc, nil
}
