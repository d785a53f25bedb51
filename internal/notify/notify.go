// Package notify abstracts the desktop alert side effect so the stores can
// be tested without a platform notification stack.
package notify

import "github.com/gen2brain/beeep"

type Alerter interface {
	Alert(title, body string) error
}

type desktopAlerter struct{}

// Desktop returns an Alerter backed by the platform notification daemon.
func Desktop() Alerter { return desktopAlerter{} }

func (desktopAlerter) Alert(title, body string) error {
	return beeep.Notify(title, body, "")
}

type noopAlerter struct{}

// Noop returns an Alerter that discards every alert.
func Noop() Alerter { return noopAlerter{} }

func (noopAlerter) Alert(title, body string) error { return nil }
