// Package logging routes the standard logger to a console stream and,
// optionally, a size-rotated file.
package logging

import (
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Uranury/bme680mon/config"
)

// Setup points the standard logger at base plus the configured file. It
// returns the writer in use, for libraries with their own loggers, and a
// close function.
func Setup(cfg config.Logging, base io.Writer) (io.Writer, func() error) {
	if cfg.LogFile == "" {
		log.SetOutput(base)
		return base, func() error { return nil }
	}

	fileLog := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}
	w := io.MultiWriter(base, fileLog)
	log.SetOutput(w)
	return w, func() error {
		log.SetOutput(base)
		return fileLog.Close()
	}
}
