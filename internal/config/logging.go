package config

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogSink is the destination shared by every component logger.
type LogSink struct {
	io.Writer
	file *lumberjack.Logger
}

// OpenLog returns a sink writing to stderr and, when Log.File is set, to a
// size-rotated file. A relative file is placed in DataDir.
func (c *Config) OpenLog() *LogSink {
	if c.Log.File == "" {
		return &LogSink{Writer: os.Stderr}
	}

	path := c.Log.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.DataDir, path)
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
	return &LogSink{Writer: io.MultiWriter(os.Stderr, file), file: file}
}

// Logger returns a logger for component, prefixed "[component] ".
func (s *LogSink) Logger(component string) *log.Logger {
	return log.New(s, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (s *LogSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
