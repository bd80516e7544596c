package session

import (
	"fmt"

	"github.com/matheus3301/opschat/internal/config"
)

const DefaultSessionName = "main"

// Source names where a session name came from.
type Source string

const (
	SourceFlag    Source = "--session flag"
	SourceConfig  Source = "default_session (config or OPSCHAT_SESSION)"
	SourceDefault Source = "built-in default"
)

// Resolve picks the session name, first match wins:
//  1. flagOverride (--session flag)
//  2. OPSCHAT_SESSION or config.toml default_session
//  3. "main"
//
// The result is normalized; errors name the source of a bad value.
func Resolve(flagOverride string) (string, error) {
	cfg, err := config.LoadWithEnv(ConfigPath(), nil)
	if err != nil {
		cfg = nil
	}
	raw, src := pick(flagOverride, cfg)
	name, err := Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", src, err)
	}
	return name, nil
}

func pick(flagOverride string, cfg *config.Config) (string, Source) {
	if flagOverride != "" {
		return flagOverride, SourceFlag
	}
	if cfg != nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession, SourceConfig
	}
	return DefaultSessionName, SourceDefault
}
