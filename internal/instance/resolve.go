package instance

import "github.com/matheus3301/parley/internal/config"

const DefaultName = "main"

// Resolve determines the active instance name using precedence:
// 1. flagOverride (--instance flag)
// 2. config.toml default_instance
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultInstance != "" {
		return cfg.DefaultInstance
	}
	return DefaultName
}
