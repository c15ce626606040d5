// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const defaultMaxBytes = 50 << 20

// Options controls logger output.
type Options struct {
	Level    string // logrus level name, default info
	File     string // rotating log file; empty or "-" for stdout only
	MaxBytes int64
	JSON     bool
}

// Setup configures the standard logrus logger and returns a closer for the
// file sink.
func Setup(opts Options) (io.Closer, error) {
	level := log.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	log.SetLevel(level)

	if opts.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	file := strings.TrimSpace(opts.File)
	if file == "" || file == "-" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	rw, err := NewRotatingWriter(file, maxBytes)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}
