package logging

import (
	"fmt"
	"log"

	"github.com/rollbar/rollbar-go"
)

// RollbarConfig carries the settings of the Rollbar reporter.
type RollbarConfig struct {
	Token       string
	Environment string
	CodeVersion string
	ServerHost  string
}

// RollbarLogger reports warnings and errors to Rollbar and echoes every
// message to a standard logger.
type RollbarLogger struct {
	client *rollbar.Client
	std    *log.Logger
}

var _ Logger = (*RollbarLogger)(nil)

// NewRollbar builds a Rollbar-backed logger. Reporting is disabled when no
// token is configured, leaving only the std echo.
func NewRollbar(std *log.Logger, conf RollbarConfig) *RollbarLogger {
	client := rollbar.New(conf.Token, conf.Environment, conf.CodeVersion, conf.ServerHost, "")
	client.SetEnabled(conf.Token != "")
	return &RollbarLogger{client: client, std: std}
}

// Close flushes pending reports.
func (l *RollbarLogger) Close() error {
	return l.client.Close()
}

// prepare splits alternating key/value args into Rollbar extras. The first
// error value found, as a key or a value, is returned as the cause.
func prepare(args []any) (map[string]interface{}, error) {
	extras := make(map[string]interface{}, len(args)/2)
	var cause error
	for i := 0; i < len(args); i++ {
		if err, ok := args[i].(error); ok && cause == nil {
			cause = err
			continue
		}
		key := fmt.Sprint(args[i])
		if i+1 < len(args) {
			if err, ok := args[i+1].(error); ok && cause == nil {
				cause = err
			}
			extras[key] = args[i+1]
			i++
			continue
		}
		extras["!BADKEY"] = args[i]
	}
	return extras, cause
}

func (l *RollbarLogger) report(level, msg string, args []any) {
	extras, cause := prepare(args)
	if cause != nil && level == rollbar.ERR {
		extras["message"] = msg
		l.client.ErrorWithExtras(level, cause, extras)
		return
	}
	l.client.MessageWithExtras(level, msg, extras)
}

func (l *RollbarLogger) print(level, msg string, args []any) {
	if l.std == nil {
		return
	}
	l.std.Println(append([]any{level, msg}, args...)...)
}

func (l *RollbarLogger) Debug(msg string, args ...any) {
	l.report(rollbar.DEBUG, msg, args)
	l.print("DEBUG", msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...any) {
	l.report(rollbar.INFO, msg, args)
	l.print("INFO", msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...any) {
	l.report(rollbar.WARN, msg, args)
	l.print("WARN", msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...any) {
	l.report(rollbar.ERR, msg, args)
	l.print("ERROR", msg, args)
}
