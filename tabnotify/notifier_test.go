package tabnotify

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabnotify/dbopen"
	"github.com/hazyhaar/tabnotify/favicon"
	"github.com/hazyhaar/tabnotify/host"
	"github.com/hazyhaar/tabnotify/host/hosttest"
	"github.com/hazyhaar/tabnotify/notify"
	"github.com/hazyhaar/tabnotify/tabnotify/internal/config"
)

type refSurface struct{}

func (refSurface) Draw(style favicon.EmojiStyle, _ int) (string, error) {
	return "emoji:" + style.Character, nil
}

// fakeBinder hands out hosttest fakes instead of Chrome tabs.
type fakeBinder struct {
	mu          sync.Mutex
	fakes       map[string]*hosttest.Fake
	released    map[string]int
	binds       int
	failURL     string
	onReconnect func()
	closed      bool
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{fakes: make(map[string]*hosttest.Fake), released: make(map[string]int)}
}

func (b *fakeBinder) Start(_ context.Context, onReconnect func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReconnect = onReconnect
	return nil
}

func (b *fakeBinder) Bind(_ context.Context, tc TabConfig) (*Binding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tc.URL == b.failURL {
		return nil, errors.New("navigation failed")
	}
	f := hosttest.New("Inbox (3)", "/favicon.ico")
	b.fakes[tc.ID] = f
	b.binds++
	id := tc.ID
	return &Binding{
		Env:     f,
		Surface: refSurface{},
		Close: func() error {
			b.mu.Lock()
			b.released[id]++
			b.mu.Unlock()
			return nil
		},
	}, nil
}

func (b *fakeBinder) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBinder) fake(id string) *hosttest.Fake {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fakes[id]
}

func (b *fakeBinder) bindCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.binds
}

func (b *fakeBinder) releasedCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released[id]
}

type eventSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *eventSink) fn(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *eventSink) types(id string) []notify.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.EventType
	for _, ev := range s.events {
		if ev.ControllerID == id {
			out = append(out, ev.Type)
		}
	}
	return out
}

func tab(id string) TabConfig {
	tc := TabConfig{ID: id, URL: "https://" + id + ".example.com/", Surface: SurfaceImage}
	tc.Title = "📢 Come back!"
	tc.Favicons = []favicon.Variant{favicon.Emoji("🔔"), favicon.Image("/alert.png")}
	tc.Interval = 500 * time.Millisecond
	return tc
}

func manualTab(id string) TabConfig {
	tc := tab(id)
	tc.ManualTrigger = true
	return tc
}

func newTestNotifier(t *testing.T, cfg *Config) (*Notifier, *fakeBinder, *eventSink) {
	t.Helper()
	b := newFakeBinder()
	es := &eventSink{}
	n := NewWithBinder(cfg, nil, b, NewCallbackSink(es.fn))
	t.Cleanup(func() { n.Close() })
	return n, b, es
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestActivateDeactivate(t *testing.T) {
	n, b, _ := newTestNotifier(t, nil)
	ctx := context.Background()

	if err := n.BindTab(ctx, manualTab("inbox")); err != nil {
		t.Fatal(err)
	}
	f := b.fake("inbox")

	st, err := n.Activate("inbox")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Active || !st.Animating || st.Index != 0 {
		t.Errorf("status after activate: %+v", st)
	}
	if f.CurrentTitle() != "📢 Come back!" {
		t.Errorf("title: %q", f.CurrentTitle())
	}
	if got := f.Hrefs(); !slices.Equal(got, []string{"emoji:🔔"}) {
		t.Errorf("hrefs: %v", got)
	}

	f.Advance(500 * time.Millisecond)
	if got := f.Hrefs(); !slices.Equal(got, []string{"/alert.png"}) {
		t.Errorf("hrefs after tick: %v", got)
	}

	st, err = n.Deactivate("inbox")
	if err != nil {
		t.Fatal(err)
	}
	if st.Active || st.Animating {
		t.Errorf("status after deactivate: %+v", st)
	}
	if f.CurrentTitle() != "Inbox (3)" || !slices.Equal(f.Hrefs(), []string{"/favicon.ico"}) {
		t.Errorf("not restored: %q %v", f.CurrentTitle(), f.Hrefs())
	}
	if st.Snapshot == nil || st.Snapshot.Title != "Inbox (3)" {
		t.Errorf("snapshot: %+v", st.Snapshot)
	}

	st, _ = n.Toggle("inbox")
	if !st.Active {
		t.Error("toggle did not activate")
	}
}

func TestUnknownAndDuplicate(t *testing.T) {
	n, _, _ := newTestNotifier(t, nil)
	ctx := context.Background()

	for _, op := range []func(string) (TabStatus, error){n.Activate, n.Deactivate, n.Toggle, n.Status} {
		if _, err := op("nope"); !errors.Is(err, ErrUnknownTab) {
			t.Errorf("err = %v, want ErrUnknownTab", err)
		}
	}
	if err := n.UnbindTab("nope"); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("unbind: %v", err)
	}

	if err := n.BindTab(ctx, tab("a")); err != nil {
		t.Fatal(err)
	}
	if err := n.BindTab(ctx, tab("a")); !errors.Is(err, ErrTabBound) {
		t.Errorf("duplicate bind: %v", err)
	}
	if err := n.BindTab(ctx, TabConfig{ID: "b"}); err == nil {
		t.Error("tab without url accepted")
	}
}

func TestVisibilityDrivesTab(t *testing.T) {
	n, b, _ := newTestNotifier(t, nil)
	if err := n.BindTab(context.Background(), tab("chat")); err != nil {
		t.Fatal(err)
	}
	f := b.fake("chat")

	f.SetVisibility(host.Hidden)
	if st, _ := n.Status("chat"); !st.Active {
		t.Error("hidden tab not active")
	}
	f.SetVisibility(host.Visible)
	if st, _ := n.Status("chat"); st.Active {
		t.Error("visible tab still active")
	}
}

func TestUnbindRestores(t *testing.T) {
	n, b, _ := newTestNotifier(t, nil)
	n.BindTab(context.Background(), manualTab("a"))
	f := b.fake("a")
	n.Activate("a")

	if err := n.UnbindTab("a"); err != nil {
		t.Fatal(err)
	}
	if f.CurrentTitle() != "Inbox (3)" || f.Timers() != 0 || f.Subscribers() != 0 {
		t.Errorf("after unbind: title=%q timers=%d subs=%d", f.CurrentTitle(), f.Timers(), f.Subscribers())
	}
	if b.releasedCount("a") != 1 {
		t.Errorf("binding released %d times", b.releasedCount("a"))
	}
	if len(n.Statuses()) != 0 {
		t.Error("tab still listed")
	}
}

func TestReload(t *testing.T) {
	n, b, _ := newTestNotifier(t, nil)
	ctx := context.Background()

	keep, change, drop := manualTab("keep"), manualTab("change"), manualTab("drop")
	for _, tc := range []TabConfig{keep, change, drop} {
		if err := n.BindTab(ctx, tc); err != nil {
			t.Fatal(err)
		}
	}
	n.Activate("keep")
	n.Activate("change")
	oldChange := b.fake("change")
	dropFake := b.fake("drop")
	n.Activate("drop")

	change.Title = "New mail"
	added := manualTab("added")
	if err := n.Reload(ctx, []TabConfig{keep, change, added}); err != nil {
		t.Fatal(err)
	}

	if b.bindCount() != 5 {
		t.Errorf("binds = %d, want 5 (3 initial + changed + added)", b.bindCount())
	}
	if st, _ := n.Status("keep"); !st.Active {
		t.Error("unchanged tab lost its state")
	}
	if st, _ := n.Status("change"); st.Active || st.Title != "New mail" {
		t.Errorf("changed tab: %+v", st)
	}
	if oldChange.CurrentTitle() != "Inbox (3)" {
		t.Error("changed tab not restored before rebind")
	}
	if _, err := n.Status("drop"); !errors.Is(err, ErrUnknownTab) {
		t.Error("dropped tab still bound")
	}
	if dropFake.CurrentTitle() != "Inbox (3)" {
		t.Error("dropped tab not restored")
	}
	if _, err := n.Status("added"); err != nil {
		t.Error("added tab not bound")
	}

	if err := n.Reload(ctx, []TabConfig{{ID: "bad"}}); err == nil {
		t.Error("invalid tab accepted by reload")
	}
}

func TestStartBindsConfiguredTabs(t *testing.T) {
	b := newFakeBinder()
	b.failURL = "https://broken.example.com/"
	cfg := &Config{Tabs: []TabConfig{tab("a"), {ID: "broken", URL: "https://broken.example.com/"}}}
	n := NewWithBinder(cfg, nil, b)
	defer n.Close()

	if err := n.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := n.Statuses()
	if len(st) != 1 || st[0].ID != "a" {
		t.Errorf("statuses: %+v", st)
	}
}

func TestReconnectRebinds(t *testing.T) {
	b := newFakeBinder()
	n := NewWithBinder(&Config{Tabs: []TabConfig{manualTab("a")}}, nil, b)
	defer n.Close()
	if err := n.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	n.Activate("a")
	old := b.fake("a")

	b.mu.Lock()
	reconnect := b.onReconnect
	b.mu.Unlock()
	reconnect()

	if b.bindCount() != 2 || b.releasedCount("a") != 1 {
		t.Errorf("binds=%d released=%d", b.bindCount(), b.releasedCount("a"))
	}
	if b.fake("a") == old {
		t.Error("binding not replaced")
	}
	if st, _ := n.Status("a"); st.Active {
		t.Error("fresh binding should start inactive")
	}
}

func TestEventsReachSinks(t *testing.T) {
	b := newFakeBinder()
	es := &eventSink{}
	n := NewWithBinder(nil, nil, b, NewCallbackSink(es.fn))

	n.BindTab(context.Background(), manualTab("a"))
	n.Activate("a")
	n.Deactivate("a")
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}

	want := []notify.EventType{notify.EventBound, notify.EventActivated, notify.EventDeactivated, notify.EventTornDown}
	if got := es.types("a"); !slices.Equal(got, want) {
		t.Errorf("events: %v, want %v", got, want)
	}
	if !b.closed {
		t.Error("binder not closed")
	}
	if err := n.BindTab(context.Background(), tab("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("bind after close: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestStoreTabsAndHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.db")
	ctx := context.Background()

	// A second handle plays the part of an operator editing the store.
	db, err := dbopen.Open(path, dbopen.WithSchema(config.Schema))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := config.SaveTab(ctx, db, manualTab("stored")); err != nil {
		t.Fatal(err)
	}

	override := manualTab("shared")
	override.Title = "from store"
	if err := config.SaveTab(ctx, db, override); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Tabs: []TabConfig{manualTab("file"), manualTab("shared")}}
	cfg.Store.Path = path
	n, _, _ := newTestNotifier(t, cfg)
	if err := n.Start(ctx); err != nil {
		t.Fatal(err)
	}

	ids := func() []string {
		var out []string
		for _, s := range n.Statuses() {
			out = append(out, s.ID)
		}
		return out
	}
	if got := ids(); !slices.Equal(got, []string{"file", "shared", "stored"}) {
		t.Fatalf("bound: %v", got)
	}
	if st, _ := n.Status("shared"); st.Title != "from store" {
		t.Errorf("store did not override file tab: %q", st.Title)
	}

	if err := config.SaveTab(ctx, db, manualTab("hot")); err != nil {
		t.Fatal(err)
	}
	eventually(t, "hot tab bound", func() bool {
		_, err := n.Status("hot")
		return err == nil
	})

	if err := n.RemoveTab(ctx, "stored"); err != nil {
		t.Fatal(err)
	}
	if err := n.RemoveTab(ctx, "file"); err != nil {
		t.Fatal(err)
	}
	tabs, _ := config.LoadTabs(ctx, db)
	for _, tc := range tabs {
		if tc.ID == "stored" {
			t.Error("removed tab still active in store")
		}
	}

	// Another store edit must not resurrect removed tabs.
	if err := config.SaveTab(ctx, db, manualTab("hot2")); err != nil {
		t.Fatal(err)
	}
	eventually(t, "hot2 bound", func() bool {
		_, err := n.Status("hot2")
		return err == nil
	})
	if got := ids(); !slices.Equal(got, []string{"hot", "hot2", "shared"}) {
		t.Errorf("after removals: %v", got)
	}
}

func TestPersistTab(t *testing.T) {
	ctx := context.Background()

	// In memory: replaces the binding.
	n, b, _ := newTestNotifier(t, nil)
	if err := n.PersistTab(ctx, manualTab("a")); err != nil {
		t.Fatal(err)
	}
	changed := manualTab("a")
	changed.Title = "changed"
	if err := n.PersistTab(ctx, changed); err != nil {
		t.Fatal(err)
	}
	if st, _ := n.Status("a"); st.Title != "changed" || b.releasedCount("a") != 1 {
		t.Errorf("in-memory persist: %+v released=%d", st, b.releasedCount("a"))
	}

	// With a store: written, then bound by the watcher.
	cfg := &Config{}
	cfg.Store.Path = filepath.Join(t.TempDir(), "tabs.db")
	sn, _, _ := newTestNotifier(t, cfg)
	if err := sn.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sn.PersistTab(ctx, manualTab("stored")); err != nil {
		t.Fatal(err)
	}
	eventually(t, "stored tab bound", func() bool {
		_, err := sn.Status("stored")
		return err == nil
	})
}

func TestMergeTabs(t *testing.T) {
	a, b, c := tab("a"), tab("b"), tab("c")
	b2 := tab("b")
	b2.Title = "stored"
	got := mergeTabs([]TabConfig{a, b}, []TabConfig{b2, c})
	if len(got) != 3 || got[0].ID != "a" || got[1].Title != "stored" || got[2].ID != "c" {
		t.Errorf("merge: %+v", got)
	}
}

func TestEventHistory(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{}
	cfg.Store.Path = filepath.Join(t.TempDir(), "tabs.db")
	n, _, _ := newTestNotifier(t, cfg)
	if err := n.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := n.BindTab(ctx, manualTab("inbox")); err != nil {
		t.Fatal(err)
	}
	n.Activate("inbox")
	n.Deactivate("inbox")

	var got []notify.Event
	eventually(t, "history recorded", func() bool {
		got, _ = n.Events(ctx, "inbox", 0)
		return len(got) == 3
	})
	want := []notify.EventType{notify.EventDeactivated, notify.EventActivated, notify.EventBound}
	for i, ev := range got {
		if ev.Type != want[i] || ev.ControllerID != "inbox" {
			t.Errorf("event %d: %+v, want %s", i, ev, want[i])
		}
	}

	if evs, _ := n.Events(ctx, "other", 0); len(evs) != 0 {
		t.Errorf("other tab history: %+v", evs)
	}
}

func TestEventHistoryWithoutStore(t *testing.T) {
	n, _, _ := newTestNotifier(t, nil)
	evs, err := n.Events(context.Background(), "", 10)
	if err != nil || evs != nil {
		t.Errorf("Events without store: %v, %v", evs, err)
	}
}
