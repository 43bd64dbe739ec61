package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Factory provides component-aware loggers with consistent field naming.
// Per-component levels can be overridden with HB_LOG_<COMPONENT>=debug|info|warn|error.
type Factory struct {
	baseLogger *log.Logger

	mu     sync.Mutex
	levels map[string]log.Level
}

// NewFactory creates a new logger factory.
func NewFactory(baseLogger *log.Logger) *Factory {
	f := &Factory{
		baseLogger: baseLogger,
		levels:     make(map[string]log.Level),
	}
	f.loadLevelsFromEnv()
	return f
}

func (lf *Factory) loadLevelsFromEnv() {
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "HB_LOG_") {
			continue
		}
		component := strings.ToLower(strings.TrimPrefix(key, "HB_LOG_"))
		level, err := log.ParseLevel(value)
		if err != nil {
			continue
		}
		lf.levels[component] = level
	}
}

// ForComponent creates a logger scoped to a component id.
func (lf *Factory) ForComponent(id string) *log.Logger {
	logger := lf.baseLogger.With("component", id)
	lf.mu.Lock()
	level, ok := lf.levels[id]
	lf.mu.Unlock()
	if ok {
		logger.SetLevel(level)
	}
	return logger
}

// ForService creates a logger for service components.
func (lf *Factory) ForService(id string) *log.Logger {
	return lf.ForComponent(id).With("type", "service")
}

// ForHandler creates a logger for HTTP handler components.
func (lf *Factory) ForHandler(id string) *log.Logger {
	return lf.ForComponent(id).With("type", "handler")
}

// ForAI creates a logger for AI/LLM components.
func (lf *Factory) ForAI(id string) *log.Logger {
	return lf.ForComponent(id).With("type", "ai")
}

// ForMemory creates a logger for memory components.
func (lf *Factory) ForMemory(id string) *log.Logger {
	return lf.ForComponent(id).With("type", "memory")
}

// ForDatabase creates a logger for database components.
func (lf *Factory) ForDatabase(id string) *log.Logger {
	return lf.ForComponent(id).With("type", "database")
}

// SetComponentLogLevel sets the logging level for a specific component.
func (lf *Factory) SetComponentLogLevel(id string, level log.Level) {
	lf.mu.Lock()
	lf.levels[id] = level
	lf.mu.Unlock()
}

// WithUserID adds user context to a logger.
func (lf *Factory) WithUserID(logger *log.Logger, userID string) *log.Logger {
	return logger.With("user_id", userID)
}

// WithSessionID adds session context to a logger.
func (lf *Factory) WithSessionID(logger *log.Logger, sessionID string) *log.Logger {
	return logger.With("session_id", sessionID)
}
