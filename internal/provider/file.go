package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultOutputDir = "./mail_output"

// File implements the Provider interface by writing each message as an .eml
// file in the configured output directory. Intended for development.
type File struct {
	outputDir string
}

// NewFile creates a File provider. ProviderConfig.OutputDir defaults to
// "./mail_output".
func NewFile(cfg ProviderConfig) *File {
	dir := cfg.OutputDir
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{outputDir: dir}
}

func (f *File) GetName() string { return "file" }

// Send renders the message as MIME and writes it to
// <timestamp>_<message-id>.eml in the output directory.
func (f *File) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("file: create output dir: %w", err)
	}

	raw, err := composeMIME(msg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("file: compose: %w", err)
	}

	ts := time.Now().Format("20060102_150405.000000")
	safeID := strings.NewReplacer("/", "_", "@", "_at_", ":", "_").Replace(msg.ID)
	path := filepath.Join(f.outputDir, fmt.Sprintf("%s_%s.eml", ts, safeID))

	if err := os.WriteFile(path, raw, 0o640); err != nil {
		return nil, fmt.Errorf("file: write %s: %w", path, err)
	}

	return &DeliveryResult{
		ProviderMessageID: "file-" + msg.ID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"path": path},
	}, nil
}

// HealthCheck verifies the output directory is writable.
func (f *File) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	return nil
}
