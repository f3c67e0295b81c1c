package widget

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Extension is the suffix every widget definition file carries.
const Extension = ".widget.json"

// Permission names a browser permission kind a widget page may request.
type Permission string

const (
	PermissionClipboardRead         Permission = "clipboard-read"
	PermissionClipboardWrite        Permission = "clipboard-sanitized-write"
	PermissionDisplayCapture        Permission = "display-capture"
	PermissionFullscreen            Permission = "fullscreen"
	PermissionGeolocation           Permission = "geolocation"
	PermissionIdleDetection         Permission = "idle-detection"
	PermissionMedia                 Permission = "media"
	PermissionMediaKeySystem        Permission = "mediaKeySystem"
	PermissionMidi                  Permission = "midi"
	PermissionMidiSysex             Permission = "midiSysex"
	PermissionNotifications         Permission = "notifications"
	PermissionPointerLock           Permission = "pointerLock"
	PermissionKeyboardLock          Permission = "keyboardLock"
	PermissionOpenExternal          Permission = "openExternal"
	PermissionSpeakerSelection      Permission = "speaker-selection"
	PermissionStorageAccess         Permission = "storage-access"
	PermissionTopLevelStorageAccess Permission = "top-level-storage-access"
	PermissionWindowManagement      Permission = "window-management"
	PermissionUnknown               Permission = "unknown"
	PermissionFileSystem            Permission = "fileSystem"
)

// Permissions lists every known permission kind in display order.
var Permissions = []Permission{
	PermissionClipboardRead, PermissionClipboardWrite, PermissionDisplayCapture,
	PermissionFullscreen, PermissionGeolocation, PermissionIdleDetection,
	PermissionMedia, PermissionMediaKeySystem, PermissionMidi, PermissionMidiSysex,
	PermissionNotifications, PermissionPointerLock, PermissionKeyboardLock,
	PermissionOpenExternal, PermissionSpeakerSelection, PermissionStorageAccess,
	PermissionTopLevelStorageAccess, PermissionWindowManagement,
	PermissionUnknown, PermissionFileSystem,
}

// UserAgentMapping overrides the user agent for hosts containing Domain.
type UserAgentMapping struct {
	Domain    string `json:"domain"`
	UserAgent string `json:"userAgent"`
}

// Widget is the persisted definition of one desktop widget.
//
// ID is uuid.Nil until the store assigns one; once assigned it never changes.
// Permissions maps a kind to true (allow), false (deny) or nil (browser default).
type Widget struct {
	ID                uuid.UUID            `json:"id"`
	Name              string               `json:"name"`
	HTML              string               `json:"html"`
	URL               string               `json:"url"`
	X                 int                  `json:"x"`
	Y                 int                  `json:"y"`
	Width             int                  `json:"width"`
	Height            int                  `json:"height"`
	TouchEnabled      bool                 `json:"touchEnabled"`
	Enabled           bool                 `json:"enabled"`
	CustomUserAgent   []UserAgentMapping   `json:"customUserAgent"`
	Permissions       map[Permission]*bool `json:"permissions"`
	CustomScript      string               `json:"customScript"`
	DevTools          bool                 `json:"devTools"`
	ForceInCurrentTab []string             `json:"forceInCurrentTab"`

	// FileName is the slash-separated path of the definition file relative to
	// the widgets root. It is not part of the file contents.
	FileName string `json:"-"`
}

// UnmarshalJSON accepts a missing, empty or null id as "not yet assigned".
func (w *Widget) UnmarshalJSON(data []byte) error {
	type plain Widget
	aux := struct {
		*plain
		ID *string `json:"id"`
	}{plain: (*plain)(w)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	w.ID = uuid.Nil
	if aux.ID != nil && *aux.ID != "" {
		id, err := uuid.Parse(*aux.ID)
		if err != nil {
			return fmt.Errorf("invalid widget id %q: %w", *aux.ID, err)
		}
		w.ID = id
	}
	return nil
}

// HasID reports whether an identity has been assigned.
func (w *Widget) HasID() bool {
	return w.ID != uuid.Nil
}

// Clone returns a deep copy of w.
func (w *Widget) Clone() *Widget {
	if w == nil {
		return nil
	}
	c := *w
	if w.CustomUserAgent != nil {
		c.CustomUserAgent = append([]UserAgentMapping(nil), w.CustomUserAgent...)
	}
	if w.ForceInCurrentTab != nil {
		c.ForceInCurrentTab = append([]string(nil), w.ForceInCurrentTab...)
	}
	if w.Permissions != nil {
		c.Permissions = make(map[Permission]*bool, len(w.Permissions))
		for k, v := range w.Permissions {
			if v != nil {
				b := *v
				v = &b
			}
			c.Permissions[k] = v
		}
	}
	return &c
}

// UserAgentFor returns the user agent of the first mapping whose domain is a
// case-insensitive substring of host.
func (w *Widget) UserAgentFor(host string) (string, bool) {
	host = strings.ToLower(host)
	for _, m := range w.CustomUserAgent {
		if strings.Contains(host, strings.ToLower(m.Domain)) {
			return m.UserAgent, true
		}
	}
	return "", false
}

// SetPermission records an explicit decision; nil resets to the browser default.
func (w *Widget) SetPermission(p Permission, allow *bool) {
	if allow == nil {
		delete(w.Permissions, p)
		return
	}
	if w.Permissions == nil {
		w.Permissions = make(map[Permission]*bool)
	}
	v := *allow
	w.Permissions[p] = &v
}

// PermissionFor returns the configured decision for p, nil when unset.
func (w *Widget) PermissionFor(p Permission) *bool {
	return w.Permissions[p]
}

func (w *Widget) String() string {
	return fmt.Sprintf("%s (%s)", w.Name, w.ID)
}
