// Package config holds the settings of a conversion run, loaded from a YAML
// file and overridden by command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/goccy/go-yaml"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/schema"
)

// ErrInvalidConfig matches every error returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config controls one conversion run.
type Config struct {
	From   format.Format `yaml:"from,omitempty"`
	To     format.Format `yaml:"to,omitempty"`
	Input  string        `yaml:"input,omitempty"`
	Output string        `yaml:"output,omitempty"`

	// Suffix is inserted before the ".json" extension of every output file.
	Suffix  string `yaml:"suffix,omitempty"`
	Workers int    `yaml:"workers,omitempty"`

	// Report is the path of the JSON run report. Empty disables it.
	Report string `yaml:"report,omitempty"`

	// Strict turns validator warnings into failures.
	Strict bool `yaml:"strict,omitempty"`

	// RepairArguments lets the OpenAI importer repair malformed tool call
	// arguments. Nil means the default (enabled).
	RepairArguments *bool `yaml:"repair_arguments,omitempty"`

	// SchemaChecks enables JSON Schema warnings on tool arguments. Nil means
	// the default (enabled).
	SchemaChecks *bool `yaml:"schema_checks,omitempty"`

	// GeminiJSONSchema writes Gemini tool parameters as parametersJsonSchema.
	GeminiJSONSchema bool `yaml:"gemini_json_schema,omitempty"`

	Fixups []schema.Fixup `yaml:"fixups,omitempty"`
}

// DefaultConfig returns the settings used when neither file nor flags set a value.
func DefaultConfig() Config {
	return Config{
		From:    format.Auto,
		To:      format.Gemini,
		Workers: runtime.NumCPU(),
	}
}

// Merge applies the non-zero values of source to c. Fixups from source are
// appended after the existing ones.
func (c *Config) Merge(source *Config) {
	if source.From != "" {
		c.From = source.From
	}
	if source.To != "" {
		c.To = source.To
	}
	if source.Input != "" {
		c.Input = source.Input
	}
	if source.Output != "" {
		c.Output = source.Output
	}
	if source.Suffix != "" {
		c.Suffix = source.Suffix
	}
	if source.Workers > 0 {
		c.Workers = source.Workers
	}
	if source.Report != "" {
		c.Report = source.Report
	}
	if source.Strict {
		c.Strict = true
	}
	if source.RepairArguments != nil {
		c.RepairArguments = source.RepairArguments
	}
	if source.SchemaChecks != nil {
		c.SchemaChecks = source.SchemaChecks
	}
	if source.GeminiJSONSchema {
		c.GeminiJSONSchema = true
	}
	c.Fixups = append(c.Fixups, source.Fixups...)
}

// LoadConfig reads a YAML config file and merges it over DefaultConfig.
// Unknown keys are rejected.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.UnmarshalWithOptions(data, &loaded, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// Validate normalizes the format names and checks the settings are usable.
func (c *Config) Validate() error {
	var errs []error

	from, err := format.Parse(string(c.From))
	if err != nil {
		errs = append(errs, fmt.Errorf("from: %w", err))
	}
	c.From = from

	to, err := format.Parse(string(c.To))
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("to: %w", err))
	case to == format.Auto:
		errs = append(errs, errors.New("to: destination format cannot be auto"))
	}
	c.To = to

	if c.Input == "" {
		errs = append(errs, errors.New("input: path is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers: must be at least 1, got %d", c.Workers))
	}
	for i, f := range c.Fixups {
		if f.Tool == "" {
			errs = append(errs, fmt.Errorf("fixups[%d]: tool is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Repair reports whether OpenAI argument repair is enabled.
func (c *Config) Repair() bool {
	return c.RepairArguments == nil || *c.RepairArguments
}

// SchemaChecksEnabled reports whether validator schema warnings are enabled.
func (c *Config) SchemaChecksEnabled() bool {
	return c.SchemaChecks == nil || *c.SchemaChecks
}
