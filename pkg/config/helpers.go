package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/ofclient/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// settingsField returns the Settings field whose yaml key is key.
func (c *Config) settingsField(key string) (reflect.Value, error) {
	settingsValue := reflect.ValueOf(&c.Settings).Elem()
	settingsType := settingsValue.Type()
	for i := 0; i < settingsValue.NumField(); i++ {
		if yamlKey(settingsType.Field(i)) == key {
			return settingsValue.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: %s", errors.ErrUnknownConfigKey, key)
}

func yamlKey(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

// SetValue sets a configuration value by its yaml key, e.g. "download_concurrency"
// or "retry_delay". The result is validated and left unchanged on error.
func (c *Config) SetValue(key, value string) error {
	field, err := c.settingsField(key)
	if err != nil {
		return err
	}
	previous := reflect.New(field.Type()).Elem()
	previous.Set(field)

	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %s", key, value)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %s", key, value)
		}
		field.SetBool(b)
	case field.Kind() == reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		field.SetInt(int64(n))
	case field.Kind() == reflect.String:
		field.SetString(value)
	default:
		return fmt.Errorf("%w: %s", errors.ErrUnknownConfigKey, key)
	}

	if err := c.Validate(); err != nil {
		field.Set(previous)
		return err
	}
	return nil
}

// GetValue returns a configuration value by its yaml key.
func (c *Config) GetValue(key string) (string, error) {
	field, err := c.settingsField(key)
	if err != nil {
		return "", err
	}
	return formatValue(field), nil
}

// ToMap returns every setting keyed by its yaml key.
// This is useful for displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)

	settingsValue := reflect.ValueOf(c.Settings)
	settingsType := settingsValue.Type()

	for i := 0; i < settingsValue.NumField(); i++ {
		key := yamlKey(settingsType.Field(i))
		if key == "" {
			continue
		}
		result[key] = formatValue(settingsValue.Field(i))
	}

	return result
}

func formatValue(v reflect.Value) string {
	if v.Type() == durationType {
		return time.Duration(v.Int()).String()
	}
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
