package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = "org.freedesktop.Notifications.Notify"

	appName       = "StreamWarden"
	appIcon       = "dialog-information"
	expireTimeout = int32(10000)
)

// Desktop sends notifications to the freedesktop notification daemon on the
// session bus of the user running StreamWarden.
type Desktop struct {
	connect func() (*dbus.Conn, error)
}

func NewDesktop() *Desktop {
	return &Desktop{connect: func() (*dbus.Conn, error) {
		return dbus.ConnectSessionBus()
	}}
}

// NewDesktopAt dials an explicit bus address, e.g. the
// DBUS_SESSION_BUS_ADDRESS of another login session.
func NewDesktopAt(address string) *Desktop {
	return &Desktop{connect: func() (*dbus.Conn, error) {
		conn, err := dbus.Dial(address)
		if err != nil {
			return nil, err
		}
		if err := conn.Auth(nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
		if err := conn.Hello(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to send hello: %w", err)
		}
		return conn, nil
	}}
}

func (d *Desktop) Notify(summary, body string) error {
	conn, err := d.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(notificationsService, notificationsPath)
	call := obj.Call(notifyMethod, 0, notifyArgs(summary, body)...)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	return nil
}

// notifyArgs builds the arguments of org.freedesktop.Notifications.Notify.
func notifyArgs(summary, body string) []interface{} {
	return []interface{}{
		appName,    // app_name
		uint32(0),  // replaces_id
		appIcon,    // app_icon
		summary,    // summary
		body,       // body
		[]string{}, // actions
		map[string]dbus.Variant{ // hints
			"urgency": dbus.MakeVariant(byte(1)), // normal urgency
		},
		expireTimeout, // expire_timeout
	}
}

// New returns a notifier for the given bus address, or for the caller's own
// session bus when address is empty.
func New(address string) *Desktop {
	if address == "" {
		return NewDesktop()
	}
	return NewDesktopAt(address)
}
