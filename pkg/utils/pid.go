package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// PIDManager writes and removes the server's PID file so init scripts
// and the Makefile can signal a running instance.
type PIDManager struct {
	path string
}

func NewPIDManager(path string) *PIDManager {
	return &PIDManager{path: path}
}

// WritePID records the current process ID, creating parent directories
// as needed.
func (p *PIDManager) WritePID() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

// RemovePID deletes the PID file. A file that is already gone is not
// an error, so shutdown paths can call this unconditionally.
func (p *PIDManager) RemovePID() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetPIDFile returns the path the manager writes to.
func (p *PIDManager) GetPIDFile() string {
	return p.path
}
