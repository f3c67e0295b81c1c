package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tailscale/hujson"
	"go.uber.org/zap"
)

var (
	ErrNoFileName = errors.New("widget has no file name")
	ErrNoID       = errors.New("widget has no id")
	ErrNotFound   = errors.New("widget file not found")
)

// FileStore persists widgets as individual *.widget.json files below a root
// folder.
type FileStore struct {
	root string
	log  *zap.SugaredLogger
}

// NewFileStore creates a store rooted at root. The folder is created lazily.
func NewFileStore(root string, log *zap.SugaredLogger) *FileStore {
	return &FileStore{root: root, log: log}
}

// Root returns the widgets folder.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the absolute path of w's definition file.
func (s *FileStore) Path(w *Widget) (string, error) {
	if w.FileName == "" {
		return "", ErrNoFileName
	}
	return filepath.Join(s.root, filepath.FromSlash(w.FileName)), nil
}

// LoadAll reads every widget file below the root. Unreadable or malformed
// files are skipped; their errors are joined into the returned error while the
// successfully parsed widgets are still returned.
//
// Widgets without an id, or whose id was already seen in an earlier file, get a
// fresh id which is written back so identity stays stable across loads.
func (s *FileStore) LoadAll() ([]*Widget, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create widgets folder: %w", err)
	}

	var (
		widgets []*Widget
		errs    []error
		seen    = make(map[uuid.UUID]string)
	)

	walkErr := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warnf("Skipping %s: %v", p, err)
			errs = append(errs, err)
			if d != nil && d.IsDir() && p != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), Extension) {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			errs = append(errs, err)
			return nil
		}

		w, err := s.readFile(p)
		if err != nil {
			s.log.Warnf("Skipping widget file %s: %v", rel, err)
			errs = append(errs, fmt.Errorf("%s: %w", rel, err))
			return nil
		}
		w.FileName = filepath.ToSlash(rel)

		rewrite := false
		if !w.HasID() {
			w.ID = uuid.New()
			rewrite = true
		} else if other, dup := seen[w.ID]; dup {
			s.log.Warnf("Widget file %s reuses id %s of %s; assigning a new id", rel, w.ID, other)
			w.ID = uuid.New()
			rewrite = true
		}
		seen[w.ID] = w.FileName

		if rewrite {
			if err := s.Save(w); err != nil {
				s.log.Warnf("Failed to write id back to %s: %v", rel, err)
			}
		}

		widgets = append(widgets, w)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	s.log.Debugf("Loaded %d widgets from %s", len(widgets), s.root)
	return widgets, errors.Join(errs...)
}

func (s *FileStore) readFile(p string) (*Widget, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses a widget definition. Comments and trailing commas are allowed.
func Decode(data []byte) (*Widget, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid widget JSON: %w", err)
	}
	var w Widget
	if err := json.Unmarshal(std, &w); err != nil {
		return nil, fmt.Errorf("invalid widget JSON: %w", err)
	}
	return &w, nil
}

// Save writes w to its file, creating parent folders as needed. The file is
// replaced atomically.
func (s *FileStore) Save(w *Widget) error {
	if !w.HasID() {
		return ErrNoID
	}
	p, err := s.Path(w)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode widget: %w", err)
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create widget folder: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".widget-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write widget: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write widget: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to replace widget file: %w", err)
	}
	return nil
}

// Delete removes w's definition file.
func (s *FileStore) Delete(w *Widget) error {
	p, err := s.Path(w)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", w.FileName, ErrNotFound)
		}
		return fmt.Errorf("failed to delete widget file: %w", err)
	}
	return nil
}

// NewFileName derives an unused root-level file name from a widget name.
func (s *FileStore) NewFileName(name string) string {
	base := sanitizeName(name)
	candidate := base + Extension
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(s.root, candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = base + "-" + strconv.Itoa(i) + Extension
	}
}

// WidgetDir is the folder holding a widget's own resources (html, favicon):
// a sibling folder named after the definition file.
func (s *FileStore) WidgetDir(w *Widget) (string, error) {
	if w.FileName == "" {
		return "", ErrNoFileName
	}
	stem := strings.TrimSuffix(path.Base(w.FileName), Extension)
	return filepath.Join(s.root, filepath.FromSlash(path.Dir(w.FileName)), stem), nil
}

// HTMLPath resolves the widget's html entry. Absolute paths are used as is,
// relative ones are resolved against WidgetDir.
func (s *FileStore) HTMLPath(w *Widget) (string, error) {
	if w.HTML == "" {
		return "", errors.New("widget has no html file")
	}
	if filepath.IsAbs(w.HTML) {
		return w.HTML, nil
	}
	dir, err := s.WidgetDir(w)
	if err != nil {
		return "", err
	}
	clean := strings.TrimLeft(w.HTML, `./\`)
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < 0x20, strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ". ")
	if s == "" {
		return "widget"
	}
	return s
}
