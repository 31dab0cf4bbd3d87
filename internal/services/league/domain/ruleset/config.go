package ruleset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/hardwoodsim/league/internal/platform/errors"
	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	"github.com/hardwoodsim/league/internal/services/league/domain/replay"
)

// Config is the versioned rule configuration. Values only change through
// Apply, which validates against the catalog before committing.
type Config struct {
	catalog *Catalog
	version int
	values  map[string]any
}

// NewConfig builds a config seeded with every catalog default at version 1.
func NewConfig(catalog *Catalog) (*Config, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	values := make(map[string]any, len(catalog.Parameters()))
	for _, param := range catalog.Parameters() {
		value, err := coerceValue(param, param.Default)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", param.Name, err)
		}
		values[param.Name] = value
	}
	return &Config{catalog: catalog, version: 1, values: values}, nil
}

// Version returns the current config version, bumped on every applied change.
func (c *Config) Version() int {
	return c.version
}

// Value returns the current value of a parameter.
func (c *Config) Value(name string) (any, bool) {
	value, ok := c.values[name]
	return value, ok
}

// Int returns an int parameter's current value, or its zero value when the
// parameter is unknown or not an int.
func (c *Config) Int(name string) int {
	if value, ok := c.values[name].(int); ok {
		return value
	}
	return 0
}

// Float returns a float parameter's current value.
func (c *Config) Float(name string) float64 {
	if value, ok := c.values[name].(float64); ok {
		return value
	}
	return 0
}

// Bool returns a bool parameter's current value.
func (c *Config) Bool(name string) bool {
	value, _ := c.values[name].(bool)
	return value
}

// Duration returns a duration parameter's current value.
func (c *Config) Duration(name string) time.Duration {
	value, _ := c.values[name].(time.Duration)
	return value
}

// Change is a requested rule mutation.
type Change struct {
	Parameter        string
	NewValue         any
	SourceProposalID string
	Round            int
}

// Applied records a committed rule mutation.
type Applied struct {
	Parameter        string
	OldValue         any
	NewValue         any
	SourceProposalID string
	RoundEnacted     int
	Version          int
}

// Validate checks a change against the catalog without committing it.
// Rejections carry rule validation codes so callers can tell an expected
// rejection apart from an internal failure.
func (c *Config) Validate(change Change) (any, error) {
	name := strings.TrimSpace(change.Parameter)
	param, ok := c.catalog.Lookup(name)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeRuleUnknownParameter,
			fmt.Sprintf("unknown rule parameter %q", name),
			map[string]string{"parameter": name},
		)
	}

	value, err := coerceValue(param, change.NewValue)
	if err != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeRuleValueInvalid,
			fmt.Sprintf("parameter %s: %v", name, err),
			map[string]string{"parameter": name},
		)
	}
	if err := checkRange(param, value); err != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeRuleValueOutOfRange,
			fmt.Sprintf("parameter %s: %v", name, err),
			map[string]string{"parameter": name},
		)
	}
	return value, nil
}

// Apply validates and commits a rule change, bumping the config version.
func (c *Config) Apply(change Change) (Applied, error) {
	value, err := c.Validate(change)
	if err != nil {
		return Applied{}, err
	}

	name := strings.TrimSpace(change.Parameter)
	oldValue := c.values[name]
	c.values[name] = value
	c.version++
	return Applied{
		Parameter:        name,
		OldValue:         oldValue,
		NewValue:         value,
		SourceProposalID: change.SourceProposalID,
		RoundEnacted:     change.Round,
		Version:          c.version,
	}, nil
}

// IsValidationRejection reports whether the error is an expected rule
// validation rejection rather than an internal failure. The lifecycle records
// a rollback for rejections and aborts on anything else.
func IsValidationRejection(err error) bool {
	return errors.Is(err, apperrors.New(apperrors.CodeRuleUnknownParameter, "")) ||
		errors.Is(err, apperrors.New(apperrors.CodeRuleValueInvalid, "")) ||
		errors.Is(err, apperrors.New(apperrors.CodeRuleValueOutOfRange, ""))
}

// Rebuild folds rule.changed events over a fresh default config. Replaying
// the same events always yields the same config and version.
func Rebuild(catalog *Catalog, events []event.Event) (*Config, error) {
	config, err := NewConfig(catalog)
	if err != nil {
		return nil, err
	}
	return replay.FoldErr(events, config, func(config *Config, evt event.Event) (*Config, error) {
		if evt.Type != event.TypeRuleChanged {
			return config, nil
		}
		var payload event.RuleChangedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return config, fmt.Errorf("decode rule change: %w", err)
		}
		if _, err := config.Apply(Change{
			Parameter:        payload.Parameter,
			NewValue:         payload.NewValue,
			SourceProposalID: payload.SourceProposalID,
			Round:            payload.RoundEnacted,
		}); err != nil {
			return config, fmt.Errorf("reapply rule change: %w", err)
		}
		return config, nil
	})
}

// coerceValue normalizes a raw value to the parameter's Go type. Raw values
// arrive from YAML (catalog defaults) and JSON (event payloads, interpreter
// output), so numeric types are accepted loosely but never truncated.
func coerceValue(param Parameter, raw any) (any, error) {
	switch param.Type {
	case ParamInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int(v), nil
		}
	case ParamFloat:
		switch v := raw.(type) {
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		}
	case ParamBool:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case ParamDuration:
		switch v := raw.(type) {
		case time.Duration:
			return v, nil
		case string:
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("parse duration %q: %w", v, err)
			}
			return parsed, nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// Durations round-trip through JSON as nanosecond counts.
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected whole nanoseconds, got %v", v)
			}
			return time.Duration(int64(v)), nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", param.Type, raw)
}

func checkRange(param Parameter, value any) error {
	if param.Min == nil && param.Max == nil {
		return nil
	}
	compare, err := comparable64(param, value)
	if err != nil {
		return err
	}
	if param.Min != nil {
		minValue, err := coerceValue(param, param.Min)
		if err != nil {
			return fmt.Errorf("bad catalog min: %w", err)
		}
		low, _ := comparable64(param, minValue)
		if compare < low {
			return fmt.Errorf("%v is below minimum %v", value, minValue)
		}
	}
	if param.Max != nil {
		maxValue, err := coerceValue(param, param.Max)
		if err != nil {
			return fmt.Errorf("bad catalog max: %w", err)
		}
		high, _ := comparable64(param, maxValue)
		if compare > high {
			return fmt.Errorf("%v is above maximum %v", value, maxValue)
		}
	}
	return nil
}

func comparable64(param Parameter, value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	case time.Duration:
		return float64(v), nil
	}
	return 0, fmt.Errorf("parameter type %s is not range-checked", param.Type)
}
