package logsvc

import (
	"fmt"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/user"
)

// RollbarLogger reports events to rollbar and writes them to a local zap logger.
type RollbarLogger struct {
	zl      *zap.Logger
	enabled bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(zl *zap.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{zl: zl}
}

// NewNopLogger returns a logger discarding everything, for tests.
func NewNopLogger() *RollbarLogger {
	return &RollbarLogger{zl: zap.NewNop()}
}

// NewZapLogger builds the local logger: JSON in production, console in debug mode.
func NewZapLogger(conf *core.Config, name string) (*zap.Logger, error) {
	var cfg zap.Config
	if conf.Debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	level := zapcore.InfoLevel
	if err := level.Set(conf.LogLevel); err != nil && conf.Debug {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return zl.Named(name).With(zap.String("env", conf.Env), zap.String("build", conf.Build)), nil
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.enabled = enabled && rollbar.Token() != ""
	rollbar.SetEnabled(l.enabled)
}

// Sync flushes the local logger and waits for pending rollbar reports.
func (l *RollbarLogger) Sync() {
	if l.enabled {
		rollbar.Wait()
	}
	_ = l.zl.Sync()
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l *RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, []zap.Field) {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	fields := make([]zap.Field, 0, len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			// set logged in User
			if !usrSet { // only set one User
				if l.enabled {
					rollbar.SetPerson(a.ID, a.Username, a.Email)
				}
				fields = append(fields, zap.String("user_id", a.ID))
				usrSet = true
			}
		case error:
			newArgs = append(newArgs, a)
			fields = append(fields, zap.Error(a))
		case map[string]interface{}:
			newArgs = append(newArgs, a)
			for k, v := range a {
				fields = append(fields, zap.Any(k, v))
			}
		default:
			newArgs = append(newArgs, a)
			fields = append(fields, zap.String("arg", fmt.Sprintf("%+v", a)))
		}
	}
	if !usrSet && l.enabled {
		rollbar.ClearPerson()
	}
	return newArgs, fields
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	if l.enabled {
		rollbar.Debug(rArgs...)
	}
	l.zl.Debug(msg, fields...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	if l.enabled {
		rollbar.Info(rArgs...)
	}
	l.zl.Info(msg, fields...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	if l.enabled {
		rollbar.Warning(rArgs...)
	}
	l.zl.Warn(msg, fields...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	if l.enabled {
		rollbar.Error(rArgs...)
	}
	l.zl.Error(msg, fields...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rArgs, fields := l.prepare(msg, args)
	if l.enabled {
		rollbar.Critical(rArgs...)
		rollbar.Wait()
	}
	l.zl.Fatal(msg, fields...)
}
