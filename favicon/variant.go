// Package favicon describes the favicon variants a notification cycles
// through and renders them into image references a tab can display.
package favicon

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Transparent leaves the emoji surface unfilled.
	Transparent = "transparent"
	// DefaultSize is the side of an emoji favicon in pixels.
	DefaultSize = 32
)

// Kind tags a Variant.
type Kind int

const (
	KindImage Kind = iota // an already-resolved image reference
	KindEmoji             // an emoji to rasterise
)

func (k Kind) String() string {
	if k == KindEmoji {
		return "emoji"
	}
	return "image"
}

// EmojiStyle is an emoji plus the parameters used to rasterise it.
type EmojiStyle struct {
	Character       string `json:"emoji" yaml:"emoji"`
	BackgroundColor string `json:"background_color,omitempty" yaml:"background_color,omitempty"`
	SizePx          int    `json:"size,omitempty" yaml:"size,omitempty"`
}

// Normalize fills unset fields with their defaults.
func (s EmojiStyle) Normalize() EmojiStyle {
	if s.BackgroundColor == "" {
		s.BackgroundColor = Transparent
	}
	if s.SizePx <= 0 {
		s.SizePx = DefaultSize
	}
	return s
}

// Variant is one entry of a favicon cycle: either an image reference
// (URL, path or data URL) or an emoji style.
type Variant struct {
	Kind  Kind
	Ref   string
	Emoji EmojiStyle
}

// Image returns an image-reference variant.
func Image(ref string) Variant {
	return Variant{Kind: KindImage, Ref: ref}
}

// Emoji returns an emoji variant with default styling.
func Emoji(character string) Variant {
	return Variant{Kind: KindEmoji, Emoji: EmojiStyle{Character: character}.Normalize()}
}

// StyledEmoji returns an emoji variant with explicit styling. Zero fields
// take their defaults.
func StyledEmoji(style EmojiStyle) Variant {
	return Variant{Kind: KindEmoji, Emoji: style.Normalize()}
}

func (v Variant) String() string {
	if v.Kind == KindEmoji {
		return fmt.Sprintf("emoji(%s,%s,%d)", v.Emoji.Character, v.Emoji.BackgroundColor, v.Emoji.SizePx)
	}
	return v.Ref
}

// emojiDoc accepts both the snake_case config spelling and the camelCase
// spelling used by browser-side callers.
type emojiDoc struct {
	Emoji           string `json:"emoji" yaml:"emoji"`
	BackgroundColor string `json:"background_color" yaml:"background_color"`
	BackgroundCamel string `json:"backgroundColor" yaml:"backgroundColor"`
	Size            int    `json:"size" yaml:"size"`
}

func (d emojiDoc) variant() (Variant, error) {
	if d.Emoji == "" {
		return Variant{}, fmt.Errorf("favicon: emoji variant without emoji")
	}
	bg := d.BackgroundColor
	if bg == "" {
		bg = d.BackgroundCamel
	}
	return StyledEmoji(EmojiStyle{Character: d.Emoji, BackgroundColor: bg, SizePx: d.Size}), nil
}

// UnmarshalJSON decodes either a bare string (image reference) or an
// emoji object.
func (v *Variant) UnmarshalJSON(data []byte) error {
	var ref string
	if err := json.Unmarshal(data, &ref); err == nil {
		*v = Image(ref)
		return nil
	}
	var d emojiDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("favicon: decode variant: %w", err)
	}
	out, err := d.variant()
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (v Variant) MarshalJSON() ([]byte, error) {
	if v.Kind == KindEmoji {
		return json.Marshal(v.Emoji)
	}
	return json.Marshal(v.Ref)
}

// UnmarshalYAML decodes either a scalar (image reference) or an emoji
// mapping.
func (v *Variant) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Image(node.Value)
		return nil
	case yaml.MappingNode:
		var d emojiDoc
		if err := node.Decode(&d); err != nil {
			return fmt.Errorf("favicon: decode variant: %w", err)
		}
		out, err := d.variant()
		if err != nil {
			return err
		}
		*v = out
		return nil
	default:
		return fmt.Errorf("favicon: line %d: variant must be a string or a mapping", node.Line)
	}
}

// ParseEmojiList splits a comma-separated emoji list into styled variants,
// dropping blanks.
func ParseEmojiList(list, backgroundColor string, size int) []Variant {
	var out []Variant
	for _, e := range splitList(list) {
		out = append(out, StyledEmoji(EmojiStyle{Character: e, BackgroundColor: backgroundColor, SizePx: size}))
	}
	return out
}

// ParseImageList splits a comma-separated list of image references,
// dropping blanks.
func ParseImageList(list string) []Variant {
	var out []Variant
	for _, ref := range splitList(list) {
		out = append(out, Image(ref))
	}
	return out
}

func splitList(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
