package browser

import (
	"fmt"
	"os"
	"strings"

	"deskwidgets/internal/widget"
)

// HTMLResolver locates a widget's local html entry file.
type HTMLResolver interface {
	HTMLPath(w *widget.Widget) (string, error)
}

// LoadContent loads the widget's content into s. Local html wins over url;
// a widget with neither stays blank.
func LoadContent(w *widget.Widget, resolver HTMLResolver, s Surface) error {
	if strings.TrimSpace(w.HTML) == "" {
		if strings.TrimSpace(w.URL) == "" {
			return nil
		}
		return s.Navigate(w.URL)
	}

	p, err := resolver.HTMLPath(w)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("html file not found: %w", err)
	}
	return s.NavigateToString(string(data))
}
