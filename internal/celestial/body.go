// Package celestial positions the Sun, planets and Moon in scene units on
// top of an external ephemeris. The Moon's heliocentric position is always
// derived as Earth heliocentric plus Moon geocentric, so the three vectors
// stay mutually consistent.
package celestial

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBody is returned for names that do not denote a supported body.
var ErrUnknownBody = errors.New("unknown body")

// Body identifies a solar-system body.
type Body int

const (
	Sun Body = iota
	Mercury
	Venus
	Earth
	Moon
	Mars
	Jupiter
	Saturn
	Uranus
	Neptune
	Pluto
)

var bodyNames = [...]string{
	Sun:     "sun",
	Mercury: "mercury",
	Venus:   "venus",
	Earth:   "earth",
	Moon:    "moon",
	Mars:    "mars",
	Jupiter: "jupiter",
	Saturn:  "saturn",
	Uranus:  "uranus",
	Neptune: "neptune",
	Pluto:   "pluto",
}

func (b Body) String() string {
	if b < 0 || int(b) >= len(bodyNames) {
		return fmt.Sprintf("Body(%d)", int(b))
	}
	return bodyNames[b]
}

// MarshalText encodes the body by name.
func (b Body) MarshalText() ([]byte, error) {
	if b < 0 || int(b) >= len(bodyNames) {
		return nil, fmt.Errorf("body %d: %w", int(b), ErrUnknownBody)
	}
	return []byte(bodyNames[b]), nil
}

// UnmarshalText decodes a body name.
func (b *Body) UnmarshalText(text []byte) error {
	v, err := ParseBody(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// ParseBody maps a case-insensitive name to a Body.
func ParseBody(name string) (Body, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range bodyNames {
		if s == n {
			return Body(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownBody)
}

// Bodies returns every supported body in table order.
func Bodies() []Body {
	out := make([]Body, len(bodyNames))
	for i := range out {
		out[i] = Body(i)
	}
	return out
}
