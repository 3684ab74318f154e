package restyutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Output receives a copy of every exchange made by an instrumented client.
type Output interface {
	// Write stores the formatted exchange and the raw response body under id.
	Write(id string, message string, body []byte)
}

// FilesystemOutput writes each exchange to <dir>/<id>.http and the response body
// to <dir>/<id>.body.
type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return FilesystemOutput{}, fmt.Errorf("create output directory: %w", err)
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Dir() string {
	return o.directory
}

func (o FilesystemOutput) Write(id string, message string, body []byte) {
	err := os.WriteFile(filepath.Join(o.directory, id+".http"), []byte(message), 0o600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
	err = os.WriteFile(filepath.Join(o.directory, id+".body"), body, 0o600)
	if err != nil {
		slog.Warn("failed to write body file", "id", id, "err", err)
	}
}
