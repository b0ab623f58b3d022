package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	Config
	In              string
	Errors          string
	ContinueOnError bool
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ReplayConfig{}, err
	}
	v.SetDefault("errors", "./data/replay_errors.jsonl")
	v.SetDefault("continue-on-error", true)

	base, err := fromViper(v)
	if err != nil {
		return ReplayConfig{}, err
	}
	cfg := ReplayConfig{
		Config:          base,
		In:              v.GetString("in"),
		Errors:          v.GetString("errors"),
		ContinueOnError: v.GetBool("continue-on-error"),
	}
	if cfg.In == "" {
		return ReplayConfig{}, fmt.Errorf("replay input is required")
	}
	return cfg, nil
}
