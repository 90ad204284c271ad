package notify

import (
	"log/slog"

	"github.com/hazyhaar/tabnotify/host"
)

// visibilityBinding maps the host visibility signal onto start/stop.
type visibilityBinding struct {
	env    host.Environment
	logger *slog.Logger
	sub    host.Subscription
}

func (b *visibilityBinding) attach(onHidden, onVisible func()) {
	sub, err := b.env.SubscribeVisibility(func(v host.Visibility) {
		if v == host.Hidden {
			onHidden()
			return
		}
		onVisible()
	})
	if err != nil {
		b.logger.Warn("notify: subscribe visibility", "error", err)
		return
	}
	b.sub = sub
}

func (b *visibilityBinding) detach() {
	if b.sub == 0 {
		return
	}
	b.env.Unsubscribe(b.sub)
	b.sub = 0
}

func (b *visibilityBinding) attached() bool { return b.sub != 0 }
