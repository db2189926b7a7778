//go:build linux

package overlay

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"emojid/internal/autocomplete"
	"emojid/internal/logging"
)

// Desktop notification D-Bus constants.
const (
	NotificationsService   = "org.freedesktop.Notifications"
	NotificationsPath      = "/org/freedesktop/Notifications"
	NotificationsInterface = "org.freedesktop.Notifications"

	notifyAppName = "emojid"
	notifyTimeout = int32(0) // never expire; Hide closes it
)

// Notifier renders candidates as a desktop notification that is replaced
// in place on every update.
type Notifier struct {
	mu     sync.Mutex
	conn   *dbus.Conn
	obj    dbus.BusObject
	id     uint32
	logger *logging.Logger
}

func newNotifier(logger *logging.Logger) (Overlay, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &Notifier{
		conn:   conn,
		obj:    conn.Object(NotificationsService, NotificationsPath),
		logger: logger.WithComponent("overlay"),
	}, nil
}

// Show sends or replaces the notification.
func (n *Notifier) Show(candidates []autocomplete.Candidate, selected int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	body := Render(candidates, selected)
	hints := map[string]dbus.Variant{
		"transient": dbus.MakeVariant(true),
		"urgency":   dbus.MakeVariant(byte(0)),
	}
	call := n.obj.Call(NotificationsInterface+".Notify", 0,
		notifyAppName, n.id, "", "emoji", body, []string{}, hints, notifyTimeout)
	if call.Err != nil {
		n.logger.Warn("notify failed", "error", call.Err)
		return
	}
	if err := call.Store(&n.id); err != nil {
		n.logger.Warn("notify reply", "error", err)
	}
}

// Hide closes the notification.
func (n *Notifier) Hide() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.id == 0 {
		return
	}
	call := n.obj.Call(NotificationsInterface+".CloseNotification", 0, n.id)
	if call.Err != nil {
		n.logger.Debug("close notification failed", "error", call.Err)
	}
	n.id = 0
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	n.Hide()
	return n.conn.Close()
}
