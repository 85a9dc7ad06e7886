package application

import (
	"io"

	"github.com/sirupsen/logrus"
)

func loggerOrDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
