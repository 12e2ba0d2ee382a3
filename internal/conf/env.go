package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// MEMBERBRIDGE_LEGACY_PASSWORD overrides legacy.password.
const EnvPrefix = "MEMBERBRIDGE"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables.
// Every other key is still overridable through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"legacy.port", "MEMBERBRIDGE_LEGACY_PORT", validateEnvPort},
		{"destination.port", "MEMBERBRIDGE_DESTINATION_PORT", validateEnvPort},
		{"destination.driver", "MEMBERBRIDGE_DESTINATION_DRIVER", validateEnvDriver},
		{"storage.type", "MEMBERBRIDGE_STORAGE_TYPE", validateEnvStorageType},
		{"storage.publicbaseurl", "MEMBERBRIDGE_STORAGE_PUBLICBASEURL", validateEnvURL},
		{"origin.baseurl", "MEMBERBRIDGE_ORIGIN_BASEURL", validateEnvURL},
		{"pipeline.retryattempts", "MEMBERBRIDGE_PIPELINE_RETRYATTEMPTS", validateEnvUint},
		{"debug", "MEMBERBRIDGE_DEBUG", validateEnvBool},
	}
}

// bindEnvVars sets up environment overrides with validation
func bindEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvUint(value string) error {
	if _, err := strconv.ParseUint(value, 10, 32); err != nil {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch strings.ToLower(value) {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		return nil
	}
	return fmt.Errorf("must be one of %s, %s, %s", DriverPostgres, DriverMySQL, DriverSQLite)
}

func validateEnvStorageType(value string) error {
	switch strings.ToLower(value) {
	case StorageLocal, StorageS3, StorageSFTP, StorageFTP:
		return nil
	}
	return fmt.Errorf("must be one of %s, %s, %s, %s", StorageLocal, StorageS3, StorageSFTP, StorageFTP)
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}
