package hotkeys

import (
	"sync"

	"go.uber.org/zap"

	"deskwidgets/internal/platform"
)

// Callback is called when a bound hotkey is pressed
type Callback func()

// Listener is the part of the platform layer that delivers hotkeys
type Listener interface {
	SetupHotkeyListener(bindings []platform.Hotkey, callback func(id int)) error
	StopHotkeyListener()
}

// Manager handles global hotkey registration and events
type Manager struct {
	platform Listener
	bindings []platform.Hotkey
	log      *zap.SugaredLogger

	mu         sync.Mutex
	layoutEdit Callback
	gridMode   Callback
	running    bool
}

// NewManager creates a new hotkey manager for the default bindings
func NewManager(p Listener, log *zap.SugaredLogger) *Manager {
	return &Manager{
		platform: p,
		bindings: platform.DefaultHotkeys,
		log:      log,
	}
}

// SetLayoutEditCallback sets the callback for the edit-layout hotkey
func (m *Manager) SetLayoutEditCallback(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layoutEdit = cb
}

// SetGridModeCallback sets the callback for the grid-snapping hotkey
func (m *Manager) SetGridModeCallback(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gridMode = cb
}

// Start begins listening for hotkeys
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	if err := m.platform.SetupHotkeyListener(m.bindings, m.handleHotkey); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.log.Warnf("Failed to setup hotkey listener: %v", err)
		return err
	}

	m.log.Info("Hotkey listener started")
	for _, b := range m.bindings {
		m.log.Infof("  %s", b.Name)
	}
	return nil
}

// Stop stops listening for hotkeys
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.platform.StopHotkeyListener()
	m.running = false
	m.log.Info("Hotkey listener stopped")
}

func (m *Manager) handleHotkey(id int) {
	m.mu.Lock()
	layoutCb := m.layoutEdit
	gridCb := m.gridMode
	m.mu.Unlock()

	var cb Callback
	switch id {
	case platform.HotkeyToggleLayoutEdit:
		m.log.Debug("Hotkey: toggle layout edit")
		cb = layoutCb
	case platform.HotkeyToggleGridMode:
		m.log.Debug("Hotkey: toggle grid snapping")
		cb = gridCb
	default:
		m.log.Debugf("Unknown hotkey ID: %d", id)
		return
	}
	if cb != nil {
		cb()
	}
}

// IsRunning returns whether the hotkey listener is active
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
