package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

const moduleName = "config"

// EnvPrefix prefixes every environment override, e.g. WAVES_JOBS_MAX_RETRY.
const EnvPrefix = "WAVES_"

// LoadConfig builds the configuration in four layers: defaults, the YAML
// document with ${VAR} references expanded, then environment variables.
// envFilePath, when set, is loaded into the environment first; a missing
// file is not an error.
func LoadConfig(envFilePath string, document EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()
	expanded := os.ExpandEnv(string(document))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, exception.NewWavesError(moduleName, "failed to unmarshal configuration", err)
	}
	if err := loadStructFromEnv(reflect.ValueOf(&cfg.Waves).Elem(), EnvPrefix); err != nil {
		return nil, exception.NewWavesError(moduleName, "failed to load configuration from environment variables", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the YAML document at path and loads it like LoadConfig.
func LoadFile(envFilePath, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewWavesError(moduleName, fmt.Sprintf("failed to read configuration file %s", path), err)
	}
	return LoadConfig(envFilePath, data)
}

// Validate rejects settings the application cannot start with.
func Validate(cfg *Config) error {
	w := cfg.Waves
	if w.Jobs.MaxRetry < 0 {
		return exception.NewWavesError(moduleName, fmt.Sprintf("jobs.max_retry must not be negative, got %d", w.Jobs.MaxRetry), nil)
	}
	for _, name := range w.Jobs.RetryableErrors {
		if !exception.IsErrorTypeRegistered(name) {
			return exception.NewWavesError(moduleName, fmt.Sprintf("jobs.retryable_errors references unknown error type '%s'", name), nil)
		}
	}
	switch w.Infrastructure.Repository {
	case RepositorySQL:
		if _, ok := w.Database[w.Infrastructure.DatabaseRef]; !ok {
			return exception.NewWavesError(moduleName, fmt.Sprintf("infrastructure.database_ref '%s' has no entry in the database section", w.Infrastructure.DatabaseRef), nil)
		}
	case RepositoryInMemory:
	default:
		return exception.NewWavesError(moduleName, fmt.Sprintf("unknown infrastructure.repository '%s'", w.Infrastructure.Repository), nil)
	}
	for name, r := range w.Runners {
		if r.Adaptor == "" {
			return exception.NewWavesError(moduleName, fmt.Sprintf("runner '%s' has no adaptor", name), nil)
		}
	}
	return nil
}

// loadStructFromEnv walks val and overrides every scalar or string slice
// field from the variable named after its yaml path, e.g. the field under
// jobs.max_retry reads WAVES_JOBS_MAX_RETRY. Maps are left to the YAML.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}
		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
