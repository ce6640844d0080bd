package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"robot-telemetry/pkg/config"
)

// Setup points the standard logger at stderr and, when cfg.File is set, also at a rotating file.
// The returned closer flushes and closes the file.
func Setup(cfg config.LogConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	w, closer := Writer(cfg, os.Stderr)
	log.SetOutput(w)
	return closer
}

// Writer builds the log destination without touching the global logger. A nil console logs to the file only.
func Writer(cfg config.LogConfig, console io.Writer) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return console, io.NopCloser(nil)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	if console == nil {
		return file, file
	}
	return io.MultiWriter(console, file), file
}
