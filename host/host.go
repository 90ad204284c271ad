// Package host defines the capability a notification controller needs from
// the environment that owns a tab: title and favicon access, the visibility
// signal, and a repeating scheduler.
//
// Implementations live elsewhere (a go-rod backed Chrome tab, an in-memory
// fake for tests). The controller never touches ambient global state; every
// effect goes through an Environment.
package host

import "time"

// Visibility is the state reported by the environment's visibility signal.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

func (v Visibility) String() string {
	if v == Hidden {
		return "hidden"
	}
	return "visible"
}

// FaviconEntry identifies one favicon-declaring element (a <link> whose rel
// contains "icon") and its current image reference.
type FaviconEntry struct {
	Index int    `json:"index"`
	Rel   string `json:"rel"`
	Href  string `json:"href"`
}

// TimerHandle identifies a repeating schedule. The zero value means "none".
type TimerHandle uint64

// Subscription identifies a visibility listener. The zero value means "none".
type Subscription uint64

// Scheduler runs a callback repeatedly at a fixed interval.
//
// Cancel must not block on an in-flight callback; callers are expected to
// guard their callbacks against late delivery.
type Scheduler interface {
	ScheduleRepeating(interval time.Duration, fn func()) TimerHandle
	Cancel(h TimerHandle)
}

// Environment is the host capability a controller is bound to.
type Environment interface {
	Scheduler

	// Available reports whether a document-like context exists. When it
	// returns false every other call may fail and callers treat the
	// operation as a no-op.
	Available() bool

	Title() (string, error)
	SetTitle(title string) error

	// FaviconEntries lists the live favicon-declaring elements in
	// document order. It never creates elements.
	FaviconEntries() ([]FaviconEntry, error)

	// CreateDefaultFavicons appends the minimal default pair
	// (rel="icon" and rel="apple-touch-icon") and returns the new live set.
	CreateDefaultFavicons() ([]FaviconEntry, error)

	// SetFaviconHref writes href to the live entry at index. An empty href
	// removes the attribute. Out-of-range indexes are ignored.
	SetFaviconHref(index int, href string) error

	SubscribeVisibility(fn func(Visibility)) (Subscription, error)
	Unsubscribe(sub Subscription)
}

// EnsureFavicons returns the live favicon entries, creating the default pair
// when the document declares none.
func EnsureFavicons(env Environment) ([]FaviconEntry, error) {
	entries, err := env.FaviconEntries()
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	return env.CreateDefaultFavicons()
}
