// Package env abstracts the filesystem locations that mdevctl operates on:
// the sysfs mediated-device tree, the persisted configuration store, and the
// callout script discovery directories. Commands are written against the
// Environment interface so tests can point everything at a scratch root.
package env

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment provides the filesystem roots for all system resources.
type Environment interface {
	// Root is the filesystem root everything else hangs off of.
	Root() string
	// MdevBase is the sysfs directory listing active mediated devices.
	MdevBase() string
	// ParentBase is the sysfs directory listing mdev-capable parent devices.
	ParentBase() string
	// PersistBase is the directory tree holding persisted device configs,
	// keyed by parent then uuid.
	PersistBase() string
	// ScriptsBase is the directory holding callout script infrastructure.
	ScriptsBase() string
	// CommandLocatorDir holds locator scripts for command-class callouts
	// (pre, post, live).
	CommandLocatorDir() string
	// GetLocatorDir holds locator scripts for get-class callouts.
	GetLocatorDir() string
	// NotifierDir holds notifier scripts, all of which run after every
	// mutating command.
	NotifierDir() string
}

// Filesystem is the default Environment rooted at a directory, normally "/".
type Filesystem struct {
	root string
}

// RootVar names the environment variable that overrides the filesystem root.
const RootVar = "MDEVCTL_ENV_ROOT"

// New returns a Filesystem environment rooted at root. An empty root falls
// back to MDEVCTL_ENV_ROOT and then to "/".
func New(root string) *Filesystem {
	if root == "" {
		root = os.Getenv(RootVar)
	}
	if root == "" {
		root = "/"
	}
	return &Filesystem{root: root}
}

func (f *Filesystem) Root() string {
	return f.root
}

func (f *Filesystem) MdevBase() string {
	return filepath.Join(f.root, "sys/bus/mdev/devices")
}

func (f *Filesystem) ParentBase() string {
	return filepath.Join(f.root, "sys/class/mdev_bus")
}

func (f *Filesystem) PersistBase() string {
	return filepath.Join(f.root, "etc/mdevctl.d")
}

func (f *Filesystem) ScriptsBase() string {
	return filepath.Join(f.PersistBase(), "scripts.d")
}

func (f *Filesystem) CommandLocatorDir() string {
	return filepath.Join(f.ScriptsBase(), "locators/command")
}

func (f *Filesystem) GetLocatorDir() string {
	return filepath.Join(f.ScriptsBase(), "locators/get")
}

func (f *Filesystem) NotifierDir() string {
	return filepath.Join(f.ScriptsBase(), "notifiers")
}

// SelfCheck verifies that the directories a packaged installation is expected
// to provide actually exist.
func SelfCheck(e Environment) error {
	for _, dir := range []string{
		e.PersistBase(),
		e.CommandLocatorDir(),
		e.GetLocatorDir(),
		e.NotifierDir(),
	} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("required directory %s does not exist; this may indicate a packaging or installation error", dir)
		}
	}
	return nil
}
