package backpressure

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level is the current backpressure level.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Config configures the backpressure manager.
type Config struct {
	// Thresholds for each level
	LowThreshold      float64 `yaml:"low_threshold"`      // 0.6 = 60%
	MediumThreshold   float64 `yaml:"medium_threshold"`   // 0.75 = 75%
	HighThreshold     float64 `yaml:"high_threshold"`     // 0.9 = 90%
	CriticalThreshold float64 `yaml:"critical_threshold"` // 0.95 = 95%

	// Timing configuration
	CheckInterval time.Duration `yaml:"check_interval"` // how often metrics are re-evaluated
	StabilizeTime time.Duration `yaml:"stabilize_time"` // minimum time a level holds before it can change again
	CooldownTime  time.Duration `yaml:"cooldown_time"`  // minimum time between two level changes

	// Admission-reduction factor per level
	LowReduction      float64 `yaml:"low_reduction"`      // 0.9 = 90% of capacity
	MediumReduction   float64 `yaml:"medium_reduction"`   // 0.7 = 70% of capacity
	HighReduction     float64 `yaml:"high_reduction"`     // 0.5 = 50% of capacity
	CriticalReduction float64 `yaml:"critical_reduction"` // 0.2 = 20% of capacity
}

// Metrics is the input the manager scores to choose a Level.
type Metrics struct {
	QueueUtilization  float64 // 0.0 - 1.0
	MemoryUtilization float64 // 0.0 - 1.0
	CPUUtilization    float64 // 0.0 - 1.0
	IOUtilization     float64 // 0.0 - 1.0
	ErrorRate         float64 // 0.0 - 1.0
}

// Manager tracks backpressure level from a weighted blend of system metrics.
type Manager struct {
	config Config
	logger *logrus.Logger

	// current state
	currentLevel    Level
	currentFactor   float64
	lastLevelChange time.Time
	lastCheck       time.Time
	stabilizeUntil  time.Time

	// notified on every level change
	onLevelChange func(Level, Level, float64)

	metrics Metrics

	mu sync.RWMutex
}

// NewManager builds a Manager, filling in defaults for any zero-valued field.
func NewManager(config Config, logger *logrus.Logger) *Manager {
	if config.LowThreshold == 0 {
		config.LowThreshold = 0.6
	}
	if config.MediumThreshold == 0 {
		config.MediumThreshold = 0.75
	}
	if config.HighThreshold == 0 {
		config.HighThreshold = 0.9
	}
	if config.CriticalThreshold == 0 {
		config.CriticalThreshold = 0.95
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = 5 * time.Second
	}
	if config.StabilizeTime == 0 {
		config.StabilizeTime = 30 * time.Second
	}
	if config.CooldownTime == 0 {
		config.CooldownTime = 10 * time.Second
	}
	if config.LowReduction == 0 {
		config.LowReduction = 0.9
	}
	if config.MediumReduction == 0 {
		config.MediumReduction = 0.7
	}
	if config.HighReduction == 0 {
		config.HighReduction = 0.5
	}
	if config.CriticalReduction == 0 {
		config.CriticalReduction = 0.2
	}

	return &Manager{
		config:        config,
		logger:        logger,
		currentLevel:  LevelNone,
		currentFactor: 1.0,
	}
}

// UpdateMetrics records a fresh metrics sample and re-evaluates the level.
func (m *Manager) UpdateMetrics(metrics Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics = metrics
	m.lastCheck = time.Now()

	m.evaluateLevel()
}

// evaluateLevel scores the current metrics and applies a level change if the
// cooldown and stabilize windows allow it.
func (m *Manager) evaluateLevel() {
	overallScore := (m.metrics.QueueUtilization * 0.3) +
		(m.metrics.MemoryUtilization * 0.25) +
		(m.metrics.CPUUtilization * 0.2) +
		(m.metrics.IOUtilization * 0.15) +
		(m.metrics.ErrorRate * 0.1)

	newLevel := m.calculateLevel(overallScore)

	if time.Since(m.lastLevelChange) < m.config.CooldownTime {
		return
	}

	if time.Now().Before(m.stabilizeUntil) && newLevel != m.currentLevel {
		return
	}

	if newLevel != m.currentLevel {
		m.changeLevel(newLevel)
	}
}

// calculateLevel maps a weighted score onto a Level.
func (m *Manager) calculateLevel(score float64) Level {
	switch {
	case score >= m.config.CriticalThreshold:
		return LevelCritical
	case score >= m.config.HighThreshold:
		return LevelHigh
	case score >= m.config.MediumThreshold:
		return LevelMedium
	case score >= m.config.LowThreshold:
		return LevelLow
	default:
		return LevelNone
	}
}

// changeLevel applies newLevel, recomputes the admission factor, and fires
// the level-change callback if one is registered.
func (m *Manager) changeLevel(newLevel Level) {
	oldLevel := m.currentLevel
	m.currentLevel = newLevel
	m.lastLevelChange = time.Now()
	m.stabilizeUntil = time.Now().Add(m.config.StabilizeTime)

	switch newLevel {
	case LevelNone:
		m.currentFactor = 1.0
	case LevelLow:
		m.currentFactor = m.config.LowReduction
	case LevelMedium:
		m.currentFactor = m.config.MediumReduction
	case LevelHigh:
		m.currentFactor = m.config.HighReduction
	case LevelCritical:
		m.currentFactor = m.config.CriticalReduction
	}

	m.logger.WithFields(logrus.Fields{
		"old_level":     oldLevel.String(),
		"new_level":     newLevel.String(),
		"factor":        m.currentFactor,
		"queue_util":    m.metrics.QueueUtilization,
		"memory_util":   m.metrics.MemoryUtilization,
		"cpu_util":      m.metrics.CPUUtilization,
		"io_util":       m.metrics.IOUtilization,
		"error_rate":    m.metrics.ErrorRate,
	}).Info("Backpressure level changed")

	if m.onLevelChange != nil {
		m.onLevelChange(oldLevel, newLevel, m.currentFactor)
	}
}

// GetLevel returns the current backpressure level.
func (m *Manager) GetLevel() Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLevel
}

// GetFactor returns the current admission-reduction factor.
func (m *Manager) GetFactor() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentFactor
}

// IsActive reports whether any backpressure is currently applied.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLevel != LevelNone
}

// ShouldThrottle reports whether callers should slow down.
func (m *Manager) ShouldThrottle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLevel >= LevelMedium
}

// ShouldReject reports whether new work should be rejected outright.
func (m *Manager) ShouldReject() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLevel >= LevelCritical
}

// ShouldDegrade reports whether non-essential features should be disabled.
func (m *Manager) ShouldDegrade() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLevel >= LevelHigh
}

// GetMetrics returns the most recently recorded metrics sample.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// SetLevelChangeCallback registers fn to be called on every level change.
func (m *Manager) SetLevelChangeCallback(fn func(Level, Level, float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLevelChange = fn
}

// Start runs the periodic re-evaluation loop until ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.logger.Info("Starting backpressure manager")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Stopping backpressure manager")
			return ctx.Err()
		case <-ticker.C:
			m.mu.Lock()
			if time.Since(m.lastCheck) > m.config.CheckInterval {
				m.evaluateLevel()
			}
			m.mu.Unlock()
		}
	}
}

// ForceLevel overrides the current level regardless of score, cooldown, or
// stabilize window. Intended for tests and manual operator intervention.
func (m *Manager) ForceLevel(level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeLevel(level)
}

// Reset clears any active backpressure.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeLevel(LevelNone)
}

// GetStats returns a snapshot of the manager's state for diagnostics.
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"current_level":      m.currentLevel.String(),
		"current_factor":     m.currentFactor,
		"last_level_change":  m.lastLevelChange,
		"last_check":         m.lastCheck,
		"stabilize_until":    m.stabilizeUntil,
		"is_active":          m.currentLevel != LevelNone,
		"should_throttle":    m.currentLevel >= LevelMedium,
		"should_reject":      m.currentLevel >= LevelCritical,
		"should_degrade":     m.currentLevel >= LevelHigh,
		"metrics":            m.metrics,
	}
}