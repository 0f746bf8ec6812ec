// Package config loads configuration structs from YAML files and environment
// variables using `yaml`, `env`, `default` and `required` struct tags.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator is implemented by config structs that need checks beyond
// `required`. Validate runs after files, env vars and defaults are applied.
type Validator interface {
	Validate() error
}

// setFromString parses raw according to the kind of field and stores it.
// Slices of strings are comma separated.
func setFromString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %q to duration: %w", raw, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %q to int: %w", raw, err)
		}
		field.SetInt(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to convert %q to float: %w", raw, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %q to bool: %w", raw, err)
		}
		field.SetBool(v)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// fieldKey identifies a field across nested structs.
func fieldKey(parent reflect.Type, f reflect.StructField) string {
	return parent.Name() + "." + f.Name
}

// applyEnv overlays environment variables onto val and reports which fields
// were set that way, so defaults never overwrite them.
func applyEnv(val reflect.Value, typ reflect.Type, set map[string]bool) error {
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		sf := typ.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyEnv(field, sf.Type, set); err != nil {
				return err
			}
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		if err := setFromString(field, raw); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		set[fieldKey(typ, sf)] = true
	}
	return nil
}

func isRequired(sf reflect.StructField) bool {
	switch strings.ToLower(sf.Tag.Get("required")) {
	case "true", "1":
		return sf.Tag.Get("default") == ""
	}
	return false
}

// applyDefaults fills zero fields from `default` tags and collects every
// missing `required` field.
func applyDefaults(val reflect.Value, typ reflect.Type, set map[string]bool) error {
	var result error
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		sf := typ.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := applyDefaults(field, sf.Type, set); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}

		if !field.IsZero() {
			continue
		}
		if isRequired(sf) {
			result = multierror.Append(result, fmt.Errorf("required field env:%s / yaml:%s is missing",
				sf.Tag.Get("env"), sf.Tag.Get("yaml")))
			continue
		}
		def := sf.Tag.Get("default")
		if def == "" || set[fieldKey(typ, sf)] {
			continue
		}
		if err := setFromString(field, def); err != nil {
			result = multierror.Append(result, fmt.Errorf("default for %s: %w", sf.Name, err))
		}
	}
	return result
}

func load[T any](dest *T) error {
	val := reflect.ValueOf(dest).Elem()
	set := make(map[string]bool)

	if err := applyEnv(val, val.Type(), set); err != nil {
		return err
	}
	if err := applyDefaults(val, val.Type(), set); err != nil {
		var zero T
		*dest = zero
		return err
	}

	if v, ok := any(*dest).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	} else if v, ok := any(dest).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// GetConfigFromEnvVars populates dest from environment variables and defaults.
//
//	var cfg MyConfig
//	err := GetConfigFromEnvVars(&cfg)
func GetConfigFromEnvVars[T any](dest *T) error {
	return load(dest)
}

// GetConfig reads a YAML file into dest and then overlays environment
// variables. An empty path means env vars only. With allowFileErrors set, an
// unreadable or malformed file is ignored.
func GetConfig[T any](dest *T, path string, allowFileErrors bool) error {
	if path == "" {
		return load(dest)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if allowFileErrors {
			return load(dest)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		if allowFileErrors {
			var zero T
			*dest = zero
			return load(dest)
		}
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return load(dest)
}
