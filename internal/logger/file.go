package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults used when logging.file_path, max_size_mb or max_files
// are left unset.
const (
	DefaultLogFile   = "logs/newsletter-dispatch.log"
	DefaultMaxSizeMB = 100
	DefaultMaxFiles  = 5
)

// FileConfig holds rotating log file settings.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	MaxFiles  int
}

// NewFileWriter returns a size-rotated log file. Rotated files are gzipped
// and named with local time; the caller closes it on shutdown.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	if cfg.Path == "" {
		cfg.Path = DefaultLogFile
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		LocalTime:  true,
		Compress:   true,
	}
}
