package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/tailscale/hujson"
	"go.uber.org/zap"
)

// Environment overrides
const (
	EnvHome  = "WINDASH_HOME"
	EnvDebug = "WINDASH_DEBUG"
)

const (
	settingsFile = "settings.json"
	widgetsDir   = "widgets"

	MinGridSize     = 1
	MaxGridSize     = 500
	DefaultGridSize = 100
)

// DragMode selects how widget windows are positioned after a drag.
type DragMode int

const (
	DragModeFree DragMode = iota
	DragModeGridBased
)

func (m DragMode) String() string {
	switch m {
	case DragModeFree:
		return "Free"
	case DragModeGridBased:
		return "GridBased"
	default:
		return "DragMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// MarshalJSON writes the mode by name.
func (m DragMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts the mode name (any case) or its numeric value.
func (m *DragMode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch strings.ToLower(name) {
		case "free":
			*m = DragModeFree
		case "gridbased":
			*m = DragModeGridBased
		default:
			return fmt.Errorf("unknown drag mode %q", name)
		}
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid drag mode %s", data)
	}
	if n != int(DragModeFree) && n != int(DragModeGridBased) {
		return fmt.Errorf("unknown drag mode %d", n)
	}
	*m = DragMode(n)
	return nil
}

// Settings holds the global application settings
type Settings struct {
	DragMode          DragMode `json:"DragMode"`
	GridSize          int      `json:"GridSize"`
	WidgetsFolderPath string   `json:"WidgetsFolderPath"`
}

// Default returns the default settings
func Default() Settings {
	return Settings{
		DragMode:          DragModeGridBased,
		GridSize:          DefaultGridSize,
		WidgetsFolderPath: "",
	}
}

// ClampGridSize limits n to [MinGridSize, MaxGridSize].
func ClampGridSize(n int) int {
	return max(MinGridSize, min(MaxGridSize, n))
}

// DebugEnabled reports whether WINDASH_DEBUG asks for verbose logging.
func DebugEnabled() bool {
	v, err := strconv.ParseBool(os.Getenv(EnvDebug))
	return err == nil && v
}

// DefaultDir returns the settings folder.
// Uses platform-appropriate directories unless WINDASH_HOME is set:
//   - Windows: %APPDATA%\WinDash2
//   - macOS:   ~/Library/Application Support/WinDash2
//   - Linux:   ~/.config/windash2 (XDG_CONFIG_HOME)
func DefaultDir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "WinDash2"), nil

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "WinDash2"), nil

	default: // linux and others
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "windash2"), nil
	}
}

// Store owns settings.json inside the settings folder.
type Store struct {
	mu       sync.RWMutex
	dir      string
	path     string
	settings Settings
	log      *zap.SugaredLogger
}

// NewStore opens the settings in dir, creating the folder and a default
// settings file when missing. A malformed file is logged and replaced in
// memory by the defaults; it is not overwritten until the next save.
func NewStore(dir string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings folder: %w", err)
	}

	s := &Store{
		dir:      dir,
		path:     filepath.Join(dir, settingsFile),
		settings: Default(),
		log:      log,
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Infof("Settings file not found at %s, creating defaults", s.path)
		if err := s.write(s.settings); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	default:
		settings, err := decode(data)
		if err != nil {
			log.Warnf("Ignoring malformed settings file %s: %v", s.path, err)
		} else {
			s.settings = settings
		}
	}
	return s, nil
}

func decode(data []byte) (Settings, error) {
	settings := Default()
	std, err := hujson.Standardize(data)
	if err != nil {
		return settings, err
	}
	if err := json.Unmarshal(std, &settings); err != nil {
		return Default(), err
	}
	settings.GridSize = ClampGridSize(settings.GridSize)
	return settings, nil
}

// Dir returns the settings folder.
func (s *Store) Dir() string {
	return s.dir
}

// Get returns a copy of the current settings
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Save replaces the settings and writes them to disk. The in-memory value is
// updated even when the write fails.
func (s *Store) Save(settings Settings) error {
	settings.GridSize = ClampGridSize(settings.GridSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.write(settings)
}

func (s *Store) write(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

func (s *Store) update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	return s.write(s.settings)
}

// UpdateDragMode sets the drag mode and saves
func (s *Store) UpdateDragMode(mode DragMode) error {
	return s.update(func(st *Settings) { st.DragMode = mode })
}

// UpdateGridSize sets the grid size, clamped to [1, 500], and saves
func (s *Store) UpdateGridSize(size int) error {
	return s.update(func(st *Settings) { st.GridSize = ClampGridSize(size) })
}

// UpdateWidgetsFolder sets the widgets folder and saves
func (s *Store) UpdateWidgetsFolder(path string) error {
	return s.update(func(st *Settings) { st.WidgetsFolderPath = strings.TrimSpace(path) })
}

// WidgetsFolder resolves the folder widget files live in: the configured path,
// unless it is blank or names an existing file, otherwise <settings>/widgets.
// The folder is created if absent.
func (s *Store) WidgetsFolder() (string, error) {
	folder := s.Get().WidgetsFolderPath
	if strings.TrimSpace(folder) == "" || isFile(folder) {
		folder = filepath.Join(s.dir, widgetsDir)
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("failed to create widgets folder: %w", err)
	}
	return folder, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
