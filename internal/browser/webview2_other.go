//go:build !windows

package browser

// NewWebView2 is only available on Windows.
func NewWebView2(cfg Config) (Surface, error) {
	return nil, ErrUnsupported
}
