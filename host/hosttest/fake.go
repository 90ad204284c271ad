// Package hosttest provides a deterministic in-memory host.Environment with a
// manual clock, for tests of code that drives a tab's identity.
package hosttest

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/tabnotify/host"
)

// ErrUnavailable is returned by every accessor while the fake is unavailable.
var ErrUnavailable = errors.New("hosttest: environment unavailable")

type link struct {
	rel  string
	href string
}

type timer struct {
	interval time.Duration
	next     time.Duration
	fn       func()
}

// Fake is a host.Environment backed by plain fields. Timers only fire from
// Advance; visibility callbacks only fire from SetVisibility. Callbacks run
// on the caller's goroutine without the fake's lock held.
type Fake struct {
	mu          sync.Mutex
	unavailable bool
	title       string
	links       []link
	now         time.Duration

	nextTimer host.TimerHandle
	timers    map[host.TimerHandle]*timer

	nextSub host.Subscription
	subs    map[host.Subscription]func(host.Visibility)

	titleWrites int
	hrefWrites  []string
}

// New creates a Fake with the given title and favicon hrefs, each declared
// as rel="icon".
func New(title string, hrefs ...string) *Fake {
	f := &Fake{
		title:  title,
		timers: make(map[host.TimerHandle]*timer),
		subs:   make(map[host.Subscription]func(host.Visibility)),
	}
	for _, h := range hrefs {
		f.links = append(f.links, link{rel: "icon", href: h})
	}
	return f
}

// AddLink appends a favicon-declaring element with an explicit rel.
func (f *Fake) AddLink(rel, href string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, link{rel: rel, href: href})
}

// SetAvailable toggles the document-like context.
func (f *Fake) SetAvailable(ok bool) {
	f.mu.Lock()
	f.unavailable = !ok
	f.mu.Unlock()
}

// Available implements host.Environment.
func (f *Fake) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unavailable
}

// Title implements host.Environment.
func (f *Fake) Title() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return "", ErrUnavailable
	}
	return f.title, nil
}

// SetTitle implements host.Environment.
func (f *Fake) SetTitle(title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return ErrUnavailable
	}
	f.title = title
	f.titleWrites++
	return nil
}

// FaviconEntries implements host.Environment.
func (f *Fake) FaviconEntries() ([]host.FaviconEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, ErrUnavailable
	}
	return f.entriesLocked(), nil
}

// CreateDefaultFavicons implements host.Environment.
func (f *Fake) CreateDefaultFavicons() ([]host.FaviconEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return nil, ErrUnavailable
	}
	f.links = append(f.links, link{rel: "icon"}, link{rel: "apple-touch-icon"})
	return f.entriesLocked(), nil
}

// SetFaviconHref implements host.Environment.
func (f *Fake) SetFaviconHref(index int, href string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return ErrUnavailable
	}
	live := f.liveIndexesLocked()
	if index < 0 || index >= len(live) {
		return nil
	}
	l := &f.links[live[index]]
	l.href = href
	f.hrefWrites = append(f.hrefWrites, href)
	return nil
}

// SubscribeVisibility implements host.Environment.
func (f *Fake) SubscribeVisibility(fn func(host.Visibility)) (host.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return 0, ErrUnavailable
	}
	f.nextSub++
	f.subs[f.nextSub] = fn
	return f.nextSub, nil
}

// Unsubscribe implements host.Environment.
func (f *Fake) Unsubscribe(sub host.Subscription) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
}

// ScheduleRepeating implements host.Scheduler on the manual clock.
func (f *Fake) ScheduleRepeating(interval time.Duration, fn func()) host.TimerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if interval <= 0 {
		interval = time.Millisecond
	}
	f.nextTimer++
	f.timers[f.nextTimer] = &timer{interval: interval, next: f.now + interval, fn: fn}
	return f.nextTimer
}

// Cancel implements host.Scheduler.
func (f *Fake) Cancel(h host.TimerHandle) {
	f.mu.Lock()
	delete(f.timers, h)
	f.mu.Unlock()
}

// Advance moves the manual clock forward by d, firing due timers in
// deadline order. A timer cancelled by an earlier callback does not fire.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	deadline := f.now + d
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due *timer
		handles := make([]host.TimerHandle, 0, len(f.timers))
		for h := range f.timers {
			handles = append(handles, h)
		}
		sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
		for _, h := range handles {
			t := f.timers[h]
			if t.next > deadline {
				continue
			}
			if due == nil || t.next < due.next {
				due = t
			}
		}
		if due == nil {
			f.now = deadline
			f.mu.Unlock()
			return
		}
		f.now = due.next
		due.next += due.interval
		fn := due.fn
		f.mu.Unlock()

		fn()
	}
}

// SetVisibility delivers a visibility signal to every subscriber.
func (f *Fake) SetVisibility(v host.Visibility) {
	f.mu.Lock()
	subs := make([]host.Subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	fns := make([]func(host.Visibility), 0, len(subs))
	for _, s := range subs {
		fns = append(fns, f.subs[s])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// CurrentTitle returns the title regardless of availability.
func (f *Fake) CurrentTitle() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

// Hrefs returns the href of every favicon-declaring element.
func (f *Fake) Hrefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, i := range f.liveIndexesLocked() {
		out = append(out, f.links[i].href)
	}
	return out
}

// Rels returns the rel of every favicon-declaring element.
func (f *Fake) Rels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, i := range f.liveIndexesLocked() {
		out = append(out, f.links[i].rel)
	}
	return out
}

// Timers returns the number of live schedules.
func (f *Fake) Timers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Subscribers returns the number of visibility listeners.
func (f *Fake) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// TitleWrites returns how many times SetTitle succeeded.
func (f *Fake) TitleWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titleWrites
}

// HrefWrites returns every href written by SetFaviconHref, in order.
func (f *Fake) HrefWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hrefWrites...)
}

func (f *Fake) liveIndexesLocked() []int {
	var idx []int
	for i, l := range f.links {
		if strings.Contains(l.rel, "icon") {
			idx = append(idx, i)
		}
	}
	return idx
}

func (f *Fake) entriesLocked() []host.FaviconEntry {
	var out []host.FaviconEntry
	for n, i := range f.liveIndexesLocked() {
		out = append(out, host.FaviconEntry{Index: n, Rel: f.links[i].rel, Href: f.links[i].href})
	}
	return out
}

var _ host.Environment = (*Fake)(nil)
