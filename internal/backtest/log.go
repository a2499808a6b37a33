package backtest

import (
	"fmt"

	"go.uber.org/zap"
)

// LogLevel is the severity of a run log entry.
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

// String returns the shortened level tag used in formatted entries.
func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERR"
	case LevelCritical:
		return "CRIT"
	}
	return "???"
}

// LogEntry is one entry of the append-only run log.
type LogEntry struct {
	Message     string   `json:"message"`
	CandleIndex int      `json:"candleIndex"`
	Level       LogLevel `json:"level"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s][%d] %s", e.Level, e.CandleIndex, e.Message)
}

// LogObserver is invoked synchronously for every entry appended to the run
// log, in registration order.
type LogObserver func(entry LogEntry, state *State)

// addLog appends an entry to the run log, mirrors it to the run's zap
// logger, and fires the registered observers.
func addLog(state *State, message string, candleIndex int, level LogLevel) {
	entry := LogEntry{Message: message, CandleIndex: candleIndex, Level: level}
	state.logEntries = append(state.logEntries, entry)

	fields := []zap.Field{zap.Int("candle", candleIndex)}
	switch level {
	case LevelTrace, LevelDebug:
		state.setup.Logger.Debug(message, fields...)
	case LevelInfo:
		state.setup.Logger.Info(message, fields...)
	case LevelWarning:
		state.setup.Logger.Warn(message, fields...)
	default:
		state.setup.Logger.Error(message, fields...)
	}

	for _, observer := range state.setup.LogObservers {
		observer(entry, state)
	}
}
