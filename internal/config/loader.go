package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader loads a CompetitionConfig from a YAML file, expanding ${VAR}
// references from the environment before validation.
type Loader struct {
	configPath string
	config     *CompetitionConfig
}

// NewLoader creates a loader for the given path.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads, parses, defaults, and validates the configuration file.
func (l *Loader) Load() (*CompetitionConfig, error) {
	if l.configPath == "" {
		return nil, fmt.Errorf("configuration path is required")
	}

	if _, err := os.Stat(l.configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file does not exist: %s", l.configPath)
	}

	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return l.LoadFromString(string(data))
}

// LoadFromString parses configuration from a YAML document. Missing fields
// fall back to DefaultCompetitionConfig values.
func (l *Loader) LoadFromString(yamlContent string) (*CompetitionConfig, error) {
	var config CompetitionConfig
	expanded := os.ExpandEnv(yamlContent)

	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	l.config = &config
	return &config, nil
}

// applyDefaults fills unset fields from DefaultCompetitionConfig. Zero is not
// a meaningful value for any of these fields, so zero means "unset".
func applyDefaults(c *CompetitionConfig) {
	d := DefaultCompetitionConfig()

	if c.JudgeCount == 0 {
		c.JudgeCount = d.JudgeCount
	}
	if c.JudgeTimeout == 0 {
		c.JudgeTimeout = d.JudgeTimeout
	}
	if len(c.DimensionWeights) == 0 {
		c.DimensionWeights = d.DimensionWeights
	}
	if c.ScoreRange.Min == 0 && c.ScoreRange.Max == 0 {
		c.ScoreRange = d.ScoreRange
	}
	if c.EliminationThreshold == 0 {
		c.EliminationThreshold = d.EliminationThreshold
	}
	if c.EliminationInterval == 0 {
		c.EliminationInterval = d.EliminationInterval
	}
	if c.ParaphraseThreshold == 0 {
		c.ParaphraseThreshold = d.ParaphraseThreshold
	}
	if c.RepetitionThreshold == 0 {
		c.RepetitionThreshold = d.RepetitionThreshold
	}
	if c.NoveltyFloor == 0 {
		c.NoveltyFloor = d.NoveltyFloor
	}
	if c.NoveltyLocalWeight == 0 {
		c.NoveltyLocalWeight = d.NoveltyLocalWeight
	}
	if c.PenaltyDepth == 0 {
		c.PenaltyDepth = d.PenaltyDepth
	}
	if c.Penalties == (PenaltyValues{}) {
		c.Penalties = d.Penalties
	}
	if c.OrbitingThreshold == 0 {
		c.OrbitingThreshold = d.OrbitingThreshold
	}
	if c.WindowSize == 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MaxStagnationTurns == 0 {
		c.MaxStagnationTurns = d.MaxStagnationTurns
	}
	if c.SchedulerWeights == (SchedulerWeights{}) {
		c.SchedulerWeights = d.SchedulerWeights
	}
	if c.RandomnessFactor == 0 {
		c.RandomnessFactor = d.RandomnessFactor
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.TurnBudget == 0 {
		c.TurnBudget = d.TurnBudget
	}
	if c.ForfeitScore == 0 {
		c.ForfeitScore = d.ForfeitScore
	}
}

// GetConfig returns the most recently loaded configuration, or nil.
func (l *Loader) GetConfig() *CompetitionConfig {
	return l.config
}

// Reload re-reads the configuration from disk.
func (l *Loader) Reload() (*CompetitionConfig, error) {
	return l.Load()
}
