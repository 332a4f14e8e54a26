package log

import (
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

// NewLogFormat parses the format name.
// On invalid value LogFormatConsole is returned together with an error.
func NewLogFormat(format string) (LogFormat, error) {
	switch f := LogFormat(format); f {
	case LogFormatConsole, LogFormatJSON:
		return f, nil
	default:
		return LogFormatConsole, errors.Errorf(`log format must be "console" or "json", found "%s"`, format)
	}
}
