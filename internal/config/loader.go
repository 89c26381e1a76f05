package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv overrides the config search when set
const ConfigPathEnv = "MARKETPLACE_MONITOR_CONFIG"

// ErrConfigNotFound is returned when no configuration file exists in any search location
var ErrConfigNotFound = errors.New("configuration file not found")

// Credentials read from the environment when the file leaves them empty
const (
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramChatID    = "TELEGRAM_CHAT_ID"
	envDiscordWebhookURL = "DISCORD_WEBHOOK_URL"
)

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// SearchPaths lists the default config locations in priority order
func SearchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(cwd, "config.yaml"),
			filepath.Join(cwd, "config.yml"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".marketplace-monitor", "config.yaml"),
			filepath.Join(home, ".config", "marketplace-monitor", "config.yaml"),
		)
	}
	return paths
}

// GetConfigPath determines the configuration file path.
// Priority:
// 1. the --config flag value
// 2. MARKETPLACE_MONITOR_CONFIG environment variable
// 3. config.yaml / config.yml in the working directory
// 4. ~/.marketplace-monitor/config.yaml
// 5. ~/.config/marketplace-monitor/config.yaml
// An explicit flag is returned even when the file is missing so the caller can report it.
func GetConfigPath(configFilePathFlag string) string {
	if configFilePathFlag != "" {
		return configFilePathFlag
	}

	if envPath := os.Getenv(ConfigPathEnv); envPath != "" {
		return envPath
	}

	for _, path := range SearchPaths() {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// LoadConfig reads, expands and validates the configuration.
// A .env file in the working directory is loaded first; variables already set win.
func LoadConfig(providedPath string, logger zerolog.Logger) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("Failed to load .env file")
	}

	filePath := GetConfigPath(providedPath)
	if filePath == "" {
		return nil, common.WrapError(ErrConfigNotFound, "run 'marketplace-monitor init' to create one")
	}
	if !fileExists(filePath) {
		return nil, common.WrapErrorf(ErrConfigNotFound, "config file '%s' does not exist", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, common.WrapError(err, "failed to read config file")
	}

	cfg, err := ParseConfig(data, filePath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = filePath

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	logger.Debug().Str("path", filePath).Int("sites", len(cfg.Sites)).Msg("Configuration loaded")
	return cfg, nil
}

// ParseConfig decodes raw config content on top of the defaults without validating it.
// The format is chosen by the file extension; anything other than .json is read as YAML.
func ParseConfig(data []byte, filePath string) (*AppConfig, error) {
	cfg := NewDefaultAppConfig()
	expanded := ExpandEnv(string(data))

	if isJSONFile(filePath) {
		if err := json.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, common.NewError("failed to unmarshal JSON from '%s': %w", filePath, err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, common.NewError("failed to unmarshal YAML from '%s': %w", filePath, err)
		}
	}

	applyEnvCredentials(cfg)
	return cfg, nil
}

// ExpandEnv replaces ${VAR} and ${VAR:-default} references. Bare $VAR is left untouched
// because header and cookie values may legitimately contain dollar signs.
func ExpandEnv(content string) string {
	return envReference.ReplaceAllStringFunc(content, func(ref string) string {
		match := envReference.FindStringSubmatch(ref)
		if value, ok := os.LookupEnv(match[1]); ok && value != "" {
			return value
		}
		return match[2]
	})
}

func applyEnvCredentials(cfg *AppConfig) {
	fill := func(target *string, key string) {
		if strings.TrimSpace(*target) == "" {
			*target = os.Getenv(key)
		}
	}
	fill(&cfg.Notifications.Telegram.BotToken, envTelegramBotToken)
	fill(&cfg.Notifications.Telegram.ChatID, envTelegramChatID)
	fill(&cfg.Notifications.Discord.WebhookURL, envDiscordWebhookURL)
}

func isJSONFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
