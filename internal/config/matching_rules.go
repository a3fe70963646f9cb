package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"deposit-reconciliation-backend/internal/services/matching"
)

// RulesHolder serves the current matching rules and swaps them when the
// rules file changes on disk.
type RulesHolder struct {
	current atomic.Value // matching.Rules
}

// StaticRules returns a holder that never reloads.
func StaticRules(rules matching.Rules) *RulesHolder {
	h := &RulesHolder{}
	h.current.Store(rules)
	return h
}

// LoadMatchingRules reads rules from path (YAML). An empty path or a missing
// file yields the defaults. Rules are reloaded on change; invalid edits are
// logged and ignored.
func LoadMatchingRules(path string, log *zap.Logger) (*RulesHolder, error) {
	defaults := matching.DefaultRules()
	if path == "" {
		return StaticRules(defaults), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setRuleDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read matching rules: %w", err)
		}
		log.Warn("matching rules file not found, using defaults", zap.String("path", path))
		return StaticRules(defaults), nil
	}

	rules, err := decodeRules(v)
	if err != nil {
		return nil, err
	}

	h := StaticRules(rules)
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRules(v)
		if err != nil {
			log.Warn("matching rules reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		h.current.Store(updated)
		log.Info("matching rules reloaded", zap.String("file", e.Name), zap.Any("rules", updated))
	})
	v.WatchConfig()

	log.Info("matching rules loaded", zap.String("path", path), zap.Any("rules", rules))
	return h, nil
}

func (h *RulesHolder) Get() matching.Rules {
	return h.current.Load().(matching.Rules)
}

func setRuleDefaults(v *viper.Viper, d matching.Rules) {
	v.SetDefault("minSurfaceScore", d.MinSurfaceScore)
	v.SetDefault("autoMatchThreshold", d.AutoMatchThreshold)
	v.SetDefault("manualMatchScore", d.ManualMatchScore)
	v.SetDefault("maxRecommendations", d.MaxRecommendations)
	v.SetDefault("candidateLimit", d.CandidateLimit)
	v.SetDefault("candidateWindow", d.CandidateWindow)
	v.SetDefault("amountTolerance", d.AmountTolerance)
}

func decodeRules(v *viper.Viper) (matching.Rules, error) {
	var rules matching.Rules
	if err := v.Unmarshal(&rules); err != nil {
		return matching.Rules{}, fmt.Errorf("decode matching rules: %w", err)
	}
	if err := validateRules(rules); err != nil {
		return matching.Rules{}, err
	}
	return rules, nil
}

func validateRules(r matching.Rules) error {
	inUnit := func(v float64) bool { return v >= 0 && v <= 1 }
	switch {
	case !inUnit(r.MinSurfaceScore):
		return errors.New("minSurfaceScore must be within [0,1]")
	case !inUnit(r.AutoMatchThreshold):
		return errors.New("autoMatchThreshold must be within [0,1]")
	case !inUnit(r.ManualMatchScore):
		return errors.New("manualMatchScore must be within [0,1]")
	case r.AutoMatchThreshold < r.MinSurfaceScore:
		return errors.New("autoMatchThreshold must not be below minSurfaceScore")
	case r.MaxRecommendations <= 0:
		return errors.New("maxRecommendations must be positive")
	case r.CandidateLimit <= 0:
		return errors.New("candidateLimit must be positive")
	case r.CandidateWindow <= 0:
		return errors.New("candidateWindow must be positive")
	case r.AmountTolerance < 0 || r.AmountTolerance >= 1:
		return errors.New("amountTolerance must be within [0,1)")
	}
	return nil
}
