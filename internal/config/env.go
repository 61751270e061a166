package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// EnvKeys lists the environment variables that override config values.
var EnvKeys = []string{
	"CHARACTER_AI_TOKEN",
	"CHARACTER_AI_CHARACTER_ID",
	"GEMINI_API_KEY",
	"GEMINI_API_KEYS",
	"GEMINI_MODEL",
	"GEMINI_BACKEND",
	"PIPELINE_TARGET_MESSAGE_COUNT",
	"PIPELINE_MAX_BACKUPS",
	"PIPELINE_OUTPUT_DIR",
	"SERVER_PORT",
}

// LoadEnv reads a .env file and returns a map of key-value pairs.
// It ignores comments (starting with #) and empty lines.
func LoadEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if idx := strings.Index(value, " #"); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}
		env[key] = unquote(value)
	}

	return env, scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// ApplyEnvOverrides updates the configuration based on environment variables.
// Empty values are ignored so a blank .env entry never clears a setting.
func ApplyEnvOverrides(cfg *Config, env map[string]string) {
	get := func(key string) (string, bool) {
		v, ok := env[key]
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	// Character.AI
	if val, ok := get("CHARACTER_AI_TOKEN"); ok {
		cfg.CharacterAI.Token = val
	}
	if val, ok := get("CHARACTER_AI_CHARACTER_ID"); ok {
		cfg.CharacterAI.CharacterID = val
	}

	// Completion backend. GEMINI_API_KEYS wins over the single key.
	if val, ok := get("GEMINI_API_KEYS"); ok {
		cfg.Gemini.APIKeys = nonBlank(strings.Split(val, ","))
	} else if val, ok := get("GEMINI_API_KEY"); ok {
		cfg.Gemini.APIKeys = []string{val}
	}
	if val, ok := get("GEMINI_MODEL"); ok {
		cfg.Gemini.Model = val
	}
	if val, ok := get("GEMINI_BACKEND"); ok {
		cfg.Gemini.Backend = val
	}

	// Pipeline
	if val, ok := get("PIPELINE_TARGET_MESSAGE_COUNT"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Pipeline.TargetMessageCount = n
		}
	}
	if val, ok := get("PIPELINE_MAX_BACKUPS"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Pipeline.MaxBackups = n
		}
	}
	if val, ok := get("PIPELINE_OUTPUT_DIR"); ok {
		cfg.Pipeline.OutputDir = val
	}

	// Server
	if val, ok := get("SERVER_PORT"); ok {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}
}
