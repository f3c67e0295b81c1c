//go:build windows

package startup

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows/registry"
)

const runKey = `Software\Microsoft\Windows\CurrentVersion\Run`

// Registry manages the HKCU Run entry for the current executable.
type Registry struct {
	name string
	exe  func() (string, error)
}

// New returns the login manager for this platform.
func New() Manager {
	return &Registry{name: AppName, exe: os.Executable}
}

func (r *Registry) IsEnabled() (bool, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.QUERY_VALUE)
	if err != nil {
		return false, err
	}
	defer k.Close()

	_, _, err = k.GetStringValue(r.name)
	if errors.Is(err, registry.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (r *Registry) SetEnabled(enabled bool) error {
	k, _, err := registry.CreateKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()

	if !enabled {
		err := k.DeleteValue(r.name)
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return err
	}

	exe, err := r.exe()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	return k.SetStringValue(r.name, `"`+exe+`"`)
}
