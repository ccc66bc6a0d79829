// Package degradation tracks backpressure.Level and toggles named features
// off under load, restoring them once the level drops and stays down for a
// minimum hold time. internal/retention uses it to shrink its delete batch
// size under load (spec section 4.9); internal/httpapi surfaces its state on
// the health endpoint.
package degradation

import (
	"sync"
	"time"

	"netwallfa/pkg/backpressure"

	"github.com/sirupsen/logrus"
)

// Feature names a toggleable non-critical behavior.
type Feature string

const (
	FeatureRetentionFullBatch Feature = "retention_full_batch"
	FeatureVerboseLogging     Feature = "verbose_logging"
	FeatureDetailedMetrics    Feature = "detailed_metrics"
	FeatureTracingSampling    Feature = "tracing_sampling"
	FeatureHealthChecks       Feature = "health_checks"
)

// FeatureState is one feature's current toggle state.
type FeatureState struct {
	Enabled    bool               `json:"enabled"`
	DegradedAt time.Time          `json:"degraded_at,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Level      backpressure.Level `json:"level"`
}

// Config lists which features degrade at each backpressure level and the
// timing around degrading/restoring them.
type Config struct {
	DegradeAtLow      []Feature `yaml:"degrade_at_low"`
	DegradeAtMedium   []Feature `yaml:"degrade_at_medium"`
	DegradeAtHigh     []Feature `yaml:"degrade_at_high"`
	DegradeAtCritical []Feature `yaml:"degrade_at_critical"`

	GracePeriod     time.Duration `yaml:"grace_period"`      // delay before degrading after a level change
	RestoreDelay    time.Duration `yaml:"restore_delay"`      // delay before attempting a restore
	MinDegradedTime time.Duration `yaml:"min_degraded_time"` // minimum time a feature stays degraded
}

// Manager tracks feature toggle state against the current backpressure level.
type Manager struct {
	config Config
	logger *logrus.Logger

	features   map[Feature]*FeatureState
	featuresMu sync.RWMutex

	currentLevel backpressure.Level
	levelChanged time.Time

	onFeatureToggle func(Feature, bool, string)

	mu sync.RWMutex
}

// NewManager builds a Manager, filling any unset Config field with its
// production default.
func NewManager(config Config, logger *logrus.Logger) *Manager {
	if config.GracePeriod == 0 {
		config.GracePeriod = 30 * time.Second
	}
	if config.RestoreDelay == 0 {
		config.RestoreDelay = 60 * time.Second
	}
	if config.MinDegradedTime == 0 {
		config.MinDegradedTime = 30 * time.Second
	}

	if len(config.DegradeAtLow) == 0 {
		config.DegradeAtLow = []Feature{}
	}
	if len(config.DegradeAtMedium) == 0 {
		config.DegradeAtMedium = []Feature{
			FeatureVerboseLogging,
			FeatureDetailedMetrics,
		}
	}
	if len(config.DegradeAtHigh) == 0 {
		config.DegradeAtHigh = []Feature{
			FeatureVerboseLogging,
			FeatureDetailedMetrics,
			FeatureHealthChecks,
			FeatureTracingSampling,
		}
	}
	if len(config.DegradeAtCritical) == 0 {
		config.DegradeAtCritical = []Feature{
			FeatureVerboseLogging,
			FeatureDetailedMetrics,
			FeatureHealthChecks,
			FeatureTracingSampling,
			FeatureRetentionFullBatch,
		}
	}

	features := make(map[Feature]*FeatureState)
	allFeatures := []Feature{
		FeatureRetentionFullBatch,
		FeatureVerboseLogging,
		FeatureDetailedMetrics,
		FeatureTracingSampling,
		FeatureHealthChecks,
	}
	for _, feature := range allFeatures {
		features[feature] = &FeatureState{
			Enabled: true,
			Level:   backpressure.LevelNone,
		}
	}

	return &Manager{
		config:       config,
		logger:       logger,
		features:     features,
		currentLevel: backpressure.LevelNone,
	}
}

// UpdateLevel records a new backpressure level and applies or schedules the
// degradations that level implies.
func (m *Manager) UpdateLevel(newLevel backpressure.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newLevel == m.currentLevel {
		return
	}

	oldLevel := m.currentLevel
	m.currentLevel = newLevel
	m.levelChanged = time.Now()

	m.logger.WithFields(logrus.Fields{
		"old_level": oldLevel.String(),
		"new_level": newLevel.String(),
	}).Info("backpressure level changed, evaluating degradations")

	m.applyDegradationForLevel(newLevel)

	if newLevel < oldLevel {
		m.scheduleRestore()
	}
}

func (m *Manager) applyDegradationForLevel(level backpressure.Level) {
	var featuresToDegrade []Feature

	switch level {
	case backpressure.LevelLow:
		featuresToDegrade = m.config.DegradeAtLow
	case backpressure.LevelMedium:
		featuresToDegrade = append(m.config.DegradeAtLow, m.config.DegradeAtMedium...)
	case backpressure.LevelHigh:
		featuresToDegrade = append(append(m.config.DegradeAtLow, m.config.DegradeAtMedium...), m.config.DegradeAtHigh...)
	case backpressure.LevelCritical:
		featuresToDegrade = append(append(append(m.config.DegradeAtLow, m.config.DegradeAtMedium...), m.config.DegradeAtHigh...), m.config.DegradeAtCritical...)
	default:
		m.restoreAllFeatures()
		return
	}

	time.AfterFunc(m.config.GracePeriod, func() {
		m.mu.RLock()
		current := m.currentLevel
		m.mu.RUnlock()
		if current != level {
			return
		}
		for _, feature := range featuresToDegrade {
			m.degradeFeature(feature, level, "system_overload")
		}
	})
}

func (m *Manager) degradeFeature(feature Feature, level backpressure.Level, reason string) {
	m.featuresMu.Lock()
	defer m.featuresMu.Unlock()

	state, exists := m.features[feature]
	if !exists {
		return
	}

	if state.Enabled {
		state.Enabled = false
		state.DegradedAt = time.Now()
		state.Reason = reason
		state.Level = level

		m.logger.WithFields(logrus.Fields{
			"feature": string(feature),
			"level":   level.String(),
			"reason":  reason,
		}).Warn("feature degraded due to system load")

		if m.onFeatureToggle != nil {
			m.onFeatureToggle(feature, false, reason)
		}
	}
}

func (m *Manager) scheduleRestore() {
	go func() {
		time.Sleep(m.config.RestoreDelay)
		m.restoreFeatures()
	}()
}

func (m *Manager) restoreFeatures() {
	m.featuresMu.Lock()
	defer m.featuresMu.Unlock()

	now := time.Now()
	for feature, state := range m.features {
		if !state.Enabled {
			if now.Sub(state.DegradedAt) >= m.config.MinDegradedTime {
				if !m.shouldDegradeAtCurrentLevel(feature) {
					m.restoreFeature(feature)
				}
			}
		}
	}
}

func (m *Manager) shouldDegradeAtCurrentLevel(feature Feature) bool {
	switch m.currentLevel {
	case backpressure.LevelLow:
		return m.containsFeature(m.config.DegradeAtLow, feature)
	case backpressure.LevelMedium:
		return m.containsFeature(m.config.DegradeAtLow, feature) ||
			m.containsFeature(m.config.DegradeAtMedium, feature)
	case backpressure.LevelHigh:
		return m.containsFeature(m.config.DegradeAtLow, feature) ||
			m.containsFeature(m.config.DegradeAtMedium, feature) ||
			m.containsFeature(m.config.DegradeAtHigh, feature)
	case backpressure.LevelCritical:
		return m.containsFeature(m.config.DegradeAtLow, feature) ||
			m.containsFeature(m.config.DegradeAtMedium, feature) ||
			m.containsFeature(m.config.DegradeAtHigh, feature) ||
			m.containsFeature(m.config.DegradeAtCritical, feature)
	default:
		return false
	}
}

func (m *Manager) containsFeature(features []Feature, target Feature) bool {
	for _, f := range features {
		if f == target {
			return true
		}
	}
	return false
}

func (m *Manager) restoreFeature(feature Feature) {
	state, exists := m.features[feature]
	if !exists {
		return
	}

	if !state.Enabled {
		state.Enabled = true
		state.DegradedAt = time.Time{}
		state.Reason = ""
		state.Level = backpressure.LevelNone

		m.logger.WithFields(logrus.Fields{
			"feature": string(feature),
		}).Info("feature restored")

		if m.onFeatureToggle != nil {
			m.onFeatureToggle(feature, true, "system_recovered")
		}
	}
}

func (m *Manager) restoreAllFeatures() {
	m.featuresMu.Lock()
	defer m.featuresMu.Unlock()

	for feature := range m.features {
		m.restoreFeature(feature)
	}
}

// IsFeatureEnabled reports whether feature is currently enabled. An unknown
// feature is treated as enabled.
func (m *Manager) IsFeatureEnabled(feature Feature) bool {
	m.featuresMu.RLock()
	defer m.featuresMu.RUnlock()

	state, exists := m.features[feature]
	if !exists {
		return true
	}
	return state.Enabled
}

// GetFeatureState returns a copy of feature's current state.
func (m *Manager) GetFeatureState(feature Feature) *FeatureState {
	m.featuresMu.RLock()
	defer m.featuresMu.RUnlock()

	state, exists := m.features[feature]
	if !exists {
		return &FeatureState{Enabled: true}
	}
	return &FeatureState{
		Enabled:    state.Enabled,
		DegradedAt: state.DegradedAt,
		Reason:     state.Reason,
		Level:      state.Level,
	}
}

// GetAllFeatures returns a copy of every feature's state, for the health
// endpoint.
func (m *Manager) GetAllFeatures() map[Feature]*FeatureState {
	m.featuresMu.RLock()
	defer m.featuresMu.RUnlock()

	result := make(map[Feature]*FeatureState)
	for feature, state := range m.features {
		result[feature] = &FeatureState{
			Enabled:    state.Enabled,
			DegradedAt: state.DegradedAt,
			Reason:     state.Reason,
			Level:      state.Level,
		}
	}
	return result
}

// SetFeatureToggleCallback registers fn to be called whenever a feature's
// enabled state changes.
func (m *Manager) SetFeatureToggleCallback(fn func(Feature, bool, string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFeatureToggle = fn
}

// ForceDegrade degrades feature immediately, bypassing the grace period.
func (m *Manager) ForceDegrade(feature Feature, reason string) {
	m.degradeFeature(feature, m.currentLevel, reason)
}

// ForceRestore restores feature immediately, bypassing MinDegradedTime.
func (m *Manager) ForceRestore(feature Feature) {
	m.featuresMu.Lock()
	defer m.featuresMu.Unlock()
	m.restoreFeature(feature)
}

// GetStats summarizes current degradation state for the health endpoint.
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	m.featuresMu.RLock()
	defer m.mu.RUnlock()
	defer m.featuresMu.RUnlock()

	degradedCount := 0
	enabledCount := 0
	for _, state := range m.features {
		if state.Enabled {
			enabledCount++
		} else {
			degradedCount++
		}
	}

	return map[string]interface{}{
		"current_level":     m.currentLevel.String(),
		"level_changed":     m.levelChanged,
		"enabled_features":  enabledCount,
		"degraded_features": degradedCount,
		"total_features":    len(m.features),
		"features":          m.GetAllFeatures(),
	}
}
