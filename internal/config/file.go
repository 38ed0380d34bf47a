package config

import (
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// An optional YAML config file supplies defaults below the environment.
// Keys are matched case-insensitively against env names with underscores or
// dashes interchangeable (database_url == DATABASE_URL).

var (
	fileOnce   sync.Once
	fileValues map[string]string
)

func loadFile() {
	fileValues = map[string]string{}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return
	}
	for k, v := range raw {
		fileValues[normalizeKey(k)] = v
	}
}

func normalizeKey(k string) string {
	k = strings.ToUpper(strings.TrimSpace(k))
	return strings.ReplaceAll(k, "-", "_")
}

func fileValue(key string) string {
	fileOnce.Do(loadFile)
	return fileValues[normalizeKey(key)]
}
