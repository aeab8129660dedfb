package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the configuration for contract violations. These are
// terminal errors: a submission never starts with an invalid config.
func (c *Config) Validate() error {
	var errs ValidationErrors

	addError := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Message: message})
	}

	if c.Server.Address == "" {
		addError("server.address", "address cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		addError("server.read_timeout", "timeout cannot be negative")
	}
	if c.Server.WriteTimeout < 0 {
		addError("server.write_timeout", "timeout cannot be negative")
	}

	if c.Engine.URL == "" {
		addError("engine.url", "url cannot be empty")
	} else if _, err := url.Parse(c.Engine.URL); err != nil {
		addError("engine.url", fmt.Sprintf("invalid url: %v", err))
	}
	if c.Engine.MaxOutputTokens <= 0 {
		addError("engine.max_output_tokens", "must be positive")
	}
	if c.Engine.RequestTimeout < 0 {
		addError("engine.request_timeout", "timeout cannot be negative")
	}

	if c.Batching.MinGroupSize < 1 {
		addError("batching.min_group_size", "must be at least 1")
	}
	if c.Batching.MaxRatio < 1.0 {
		addError("batching.max_ratio", "must be at least 1.0")
	}
	if c.Batching.MaxCumulativeLength < 0 {
		addError("batching.max_cumulative_length", "cannot be negative")
	}
	if c.Batching.MaxItems < 0 {
		addError("batching.max_items", "cannot be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		addError("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
