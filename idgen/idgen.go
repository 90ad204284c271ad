// Package idgen provides pluggable ID generation for controllers, tabs and
// events.
//
// Every generator is a plain func so callers and tests can swap the strategy
// at startup.
package idgen

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator that produces base-36 IDs of the given length.
// Short and URL-safe; used for tab IDs typed by hand in the HTTP API.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so event IDs order like their timestamps.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

var (
	// Controller names notify controllers ("ntf_" + UUIDv7).
	Controller = Prefixed("ntf_", Default)
	// Event names controller lifecycle events ("evt_" + UUIDv7).
	Event = Prefixed("evt_", Default)
	// Tab names tabs bound without an explicit ID ("tab_" + 10 base-36).
	Tab = Prefixed("tab_", NanoID(10))
)

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string, with or without one of the prefixes
// above, and returns the bare UUID.
func Parse(s string) (string, error) {
	for _, p := range []string{"ntf_", "evt_"} {
		if len(s) > len(p) && s[:len(p)] == p {
			s = s[len(p):]
			break
		}
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
