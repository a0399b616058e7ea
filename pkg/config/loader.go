// Package config provides simple configuration loading
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads a configuration from a YAML file
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller and validated
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Substitute environment variables
	content := string(data)
	content = substituteEnvVars(content)

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// FromEnv builds a Config from environment variables, the way the
// gateway is deployed when no YAML file is mounted. Only the credential
// comes from the environment; everything else keeps its default.
func FromEnv() *Config {
	cfg := NewConfig()
	cfg.Credential = Credential{
		Realm:          os.Getenv("NETSUITE_REALM"),
		ConsumerKey:    os.Getenv("NETSUITE_CONSUMER_KEY"),
		ConsumerSecret: os.Getenv("NETSUITE_CONSUMER_SECRET"),
		TokenKey:       os.Getenv("NETSUITE_TOKEN_KEY"),
		TokenSecret:    os.Getenv("NETSUITE_TOKEN_SECRET"),
	}
	return cfg
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
