package main

import (
	"context"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/bool64/ctxd"
)

// apexLogger writes contextualized messages with apex/log.
type apexLogger struct {
	l log.Interface
}

var _ ctxd.Logger = apexLogger{}

func newLogger(w io.Writer, level, format string) (apexLogger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return apexLogger{}, err
	}

	var h log.Handler

	switch format {
	case "json":
		h = json.New(w)
	case "text", "":
		h = text.New(w)
	default:
		return apexLogger{}, fmt.Errorf("unknown log format: %q", format)
	}

	return apexLogger{l: &log.Logger{Handler: h, Level: lvl}}, nil
}

func (a apexLogger) entry(keysAndValues []interface{}) *log.Entry {
	fields := make(log.Fields, len(keysAndValues)/2)

	for i := 0; i < len(keysAndValues); i += 2 {
		k, ok := keysAndValues[i].(string)
		if !ok {
			k = fmt.Sprint(keysAndValues[i])
		}

		if i+1 == len(keysAndValues) {
			fields["!BADKEY"] = k

			break
		}

		v := keysAndValues[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}

		fields[k] = v
	}

	return a.l.WithFields(fields)
}

func (a apexLogger) Debug(_ context.Context, msg string, keysAndValues ...interface{}) {
	a.entry(keysAndValues).Debug(msg)
}

func (a apexLogger) Info(_ context.Context, msg string, keysAndValues ...interface{}) {
	a.entry(keysAndValues).Info(msg)
}

// Important messages are logged with info level and marked.
func (a apexLogger) Important(_ context.Context, msg string, keysAndValues ...interface{}) {
	a.entry(keysAndValues).WithField("important", true).Info(msg)
}

func (a apexLogger) Warn(_ context.Context, msg string, keysAndValues ...interface{}) {
	a.entry(keysAndValues).Warn(msg)
}

func (a apexLogger) Error(_ context.Context, msg string, keysAndValues ...interface{}) {
	a.entry(keysAndValues).Error(msg)
}
