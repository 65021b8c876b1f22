package callout

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/mdevctl/mdevctl/internal/env"
)

// Locate maps a device type to the callout script responsible for it by
// running the locator scripts registered for the event class in sorted
// filename order. Each locator receives the device type as its only argument
// and prints a candidate script path, or an empty string when it does not
// recognize the type. The first candidate that is an existing executable
// file wins.
//
// A miss is not an error: the caller proceeds as though no callout exists
// for the device type.
func Locate(e env.Environment, logger *slog.Logger, class Class, mdevType string) (string, bool) {
	dir := e.CommandLocatorDir()
	if class == ClassGet {
		dir = e.GetLocatorDir()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug("locator directory not readable", "dir", dir, "error", err)
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		locator := filepath.Join(dir, entry.Name())
		if !isExecutableFile(locator) {
			logger.Debug("skipping non-executable locator", "locator", locator)
			continue
		}

		out, err := exec.Command(locator, mdevType).Output()
		if err != nil {
			logger.Debug("locator script failed", "locator", locator, "type", mdevType, "error", err)
			continue
		}
		candidate := strings.TrimSpace(string(out))
		if candidate == "" {
			// not applicable, try the next locator
			continue
		}
		if !isExecutableFile(candidate) {
			logger.Warn("locator returned unusable script path", "locator", locator, "candidate", candidate)
			continue
		}
		logger.Debug("located callout script", "type", mdevType, "script", candidate)
		return candidate, true
	}
	return "", false
}

// readScriptDir lists the executable files in a script directory in sorted
// filename order.
func readScriptDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var scripts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if isExecutableFile(path) {
			scripts = append(scripts, path)
		}
	}
	return scripts, nil
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
