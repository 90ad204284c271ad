package rodhost

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/tabnotify/favicon"
)

const jsDrawEmoji = `(emoji, bg, size, fontPx) => {
	const canvas = document.createElement("canvas");
	canvas.width = size;
	canvas.height = size;
	const ctx = canvas.getContext("2d");
	if (!ctx) return "";
	if (bg !== "transparent") {
		ctx.fillStyle = bg;
		ctx.fillRect(0, 0, size, size);
	}
	ctx.font = fontPx + 'px "Apple Color Emoji", "Segoe UI Emoji", "Noto Color Emoji", Arial';
	ctx.textAlign = "center";
	ctx.textBaseline = "middle";
	ctx.fillText(emoji, size / 2, size / 2);
	return canvas.toDataURL("image/png");
}`

// CanvasSurface draws emoji on an in-page <canvas>, so the result uses the
// browser's own colour emoji font.
type CanvasSurface struct {
	page    *rod.Page
	timeout time.Duration
}

// NewCanvasSurface creates a surface drawing on page.
func NewCanvasSurface(page *rod.Page) *CanvasSurface {
	return &CanvasSurface{page: page, timeout: 5 * time.Second}
}

// Draw implements favicon.Surface. A page without a 2D context yields "".
func (c *CanvasSurface) Draw(style favicon.EmojiStyle, fontPx int) (string, error) {
	if c == nil || c.page == nil {
		return "", fmt.Errorf("rodhost: no page for canvas")
	}
	style = style.Normalize()
	res, err := c.page.Timeout(c.timeout).Eval(jsDrawEmoji, style.Character, style.BackgroundColor, style.SizePx, fontPx)
	if err != nil {
		return "", fmt.Errorf("rodhost: draw emoji: %w", err)
	}
	return res.Value.Str(), nil
}

var _ favicon.Surface = (*CanvasSurface)(nil)
