package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment overrides use the ACCWATCH_ prefix and take precedence over
// the config file.
func (c *Config) applyEnv() {
	setString("ACCWATCH_SERVER_HOST", &c.Server.Host)
	setInt("ACCWATCH_SERVER_PORT", &c.Server.Port)
	setString("ACCWATCH_BASE_PATH", &c.Server.BasePath)

	setString("ACCWATCH_SOURCE_URL", &c.Source.URL)
	setString("ACCWATCH_SOURCE_USER_AGENT", &c.Source.UserAgent)
	setInt("ACCWATCH_SOURCE_MAX_ATTEMPTS", &c.Source.MaxAttempts)

	setString("ACCWATCH_AUTH_BASE_URL", &c.Auth.BaseURL)
	setString("ACCWATCH_AUTH_REGION", &c.Auth.Region)
	setInt("ACCWATCH_AUTH_TIMEOUT_SECONDS", &c.Auth.TimeoutSeconds)

	setInt("ACCWATCH_REFRESH_TTL_SECONDS", &c.Refresh.TTLSeconds)
	setString("ACCWATCH_REFRESH_POLICY", &c.Refresh.Policy)
	setInt("ACCWATCH_REFRESH_DELAY_MS", &c.Refresh.DelayMS)
	setInt("ACCWATCH_REFRESH_BATCH_SIZE", &c.Refresh.BatchSize)
	setInt("ACCWATCH_REFRESH_MAX_PARALLEL", &c.Refresh.MaxParallel)
	setInt("ACCWATCH_REFRESH_POLL_INTERVAL_SECONDS", &c.Refresh.PollIntervalSeconds)
	setString("ACCWATCH_STATE_PATH", &c.Refresh.StatePath)

	setBool("ACCWATCH_DEBUG", &c.Security.Debug)
	setString("ACCWATCH_LOG_FILE", &c.Security.LogFile)
	setString("ACCWATCH_REFRESH_KEY", &c.Security.RefreshKey)
	setInt("ACCWATCH_RATE_LIMIT", &c.Security.RateLimit)
	setInt("ACCWATCH_RATE_BURST", &c.Security.RateBurst)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}
