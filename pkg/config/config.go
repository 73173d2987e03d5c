// Package config loads covspelunk settings from an optional YAML file and
// COVSPELUNK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Verbosity string  `yaml:"verbosity" env:"COVSPELUNK_VERBOSITY" env-default:"info" validate:"oneof=error info debug trace"`
	LogDir    string  `yaml:"log_dir" env:"COVSPELUNK_LOG_DIR"`
	Extract   Extract `yaml:"extract"`
	Trace     Trace   `yaml:"trace"`
	Index     Index   `yaml:"index"`
}

// Extract holds the roots of the coverage report conversion.
type Extract struct {
	SourceRoot string `yaml:"source_root" env:"COVSPELUNK_SOURCE_ROOT" env-default:"preprocess_result" validate:"required"`
	TargetRoot string `yaml:"target_root" env:"COVSPELUNK_TARGET_ROOT" env-default:"preprocess_code" validate:"required,nefield=SourceRoot"`
	Ext        string `yaml:"ext" env:"COVSPELUNK_REPORT_EXT" env-default:".gcov.html" validate:"required,startswith=."`
}

type Trace struct {
	// OutputRoot is where materialized listings land. Empty means the
	// directory of the running executable.
	OutputRoot string `yaml:"output_root" env:"COVSPELUNK_OUTPUT_ROOT"`
}

type Index struct {
	DB string `yaml:"db" env:"COVSPELUNK_DB" env-default:"trace.db" validate:"required"`
}

var ErrInvalid = errors.New("invalid configuration")

// Load reads the configuration. With an empty path only the environment and
// defaults are used.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file does not exist: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and reports every violation at once.
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
