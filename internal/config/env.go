package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "STOCKAI"

// Environment keys read on top of the YAML file.
const (
	EnvDefaultProvider = "DEFAULT_AI_PROVIDER"
	EnvServerPort      = "STOCKAI_SERVER_PORT"
	EnvRedisAddr       = "STOCKAI_REDIS_ADDR"
)

// applyEnv resolves API keys from each provider's api_key_env and applies the
// process-level overrides. Environment values take priority over the file.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("default_provider", EnvDefaultProvider)

	// Unknown names are dropped; the factory then picks the first available provider.
	if name := strings.ToLower(strings.TrimSpace(v.GetString("default_provider"))); name != "" {
		if _, ok := cfg.Providers.ByName(name); ok {
			cfg.DefaultProvider = name
		} else {
			slog.Warn("ignoring unknown default provider",
				"env", EnvDefaultProvider,
				"value", name,
				"known", strings.Join(KnownProviders, ", "),
			)
			cfg.DefaultProvider = ""
		}
	}
	if v.IsSet("server.port") {
		if port := v.GetInt("server.port"); port != 0 {
			cfg.Server.Port = port
		}
	}
	if addr := strings.TrimSpace(v.GetString("redis.addr")); addr != "" {
		cfg.Cache.RedisAddr = addr
	}

	for _, name := range KnownProviders {
		p := cfg.Providers.ptr(name)
		if p == nil || p.APIKeyEnv == "" {
			continue
		}
		_ = v.BindEnv("keys."+name, p.APIKeyEnv)
		if key := strings.TrimSpace(v.GetString("keys." + name)); key != "" {
			p.APIKey = key
		}
	}

	if cfg.Cache.PasswordEnv != "" {
		_ = v.BindEnv("cache.password", cfg.Cache.PasswordEnv)
		cfg.Cache.Password = v.GetString("cache.password")
	}
}
