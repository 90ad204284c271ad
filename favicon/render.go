package favicon

import (
	"log/slog"
	"sync"
)

// Surface rasterises an emoji style into an image reference. Implementations
// may draw in-process or on a remote canvas.
type Surface interface {
	Draw(style EmojiStyle, fontPx int) (string, error)
}

// FontPx is the font size used for an emoji on a square of side sizePx.
func FontPx(sizePx int) int {
	return sizePx * 7 / 10
}

// Renderer converts variants into image references. Emoji results are
// cached per style since rendering is deterministic.
type Renderer struct {
	surface Surface
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[EmojiStyle]string
}

// NewRenderer creates a Renderer drawing on surface. A nil surface makes
// every emoji render to the empty reference.
func NewRenderer(surface Surface, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		surface: surface,
		logger:  logger,
		cache:   make(map[EmojiStyle]string),
	}
}

// Render returns the image reference for v. Image variants pass through
// unchanged. Emoji variants return "" when no surface is available or
// drawing fails.
func (r *Renderer) Render(v Variant) string {
	if v.Kind != KindEmoji {
		return v.Ref
	}
	if r == nil || r.surface == nil {
		return ""
	}

	style := v.Emoji.Normalize()

	r.mu.Lock()
	ref, ok := r.cache[style]
	r.mu.Unlock()
	if ok {
		return ref
	}

	ref, err := r.surface.Draw(style, FontPx(style.SizePx))
	if err != nil {
		r.logger.Debug("favicon: render failed", "emoji", style.Character, "error", err)
		return ""
	}
	if ref == "" {
		return ""
	}

	r.mu.Lock()
	r.cache[style] = ref
	r.mu.Unlock()
	return ref
}
