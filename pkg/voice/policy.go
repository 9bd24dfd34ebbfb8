package voice

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for an unknown mode
// to be reported as a probable typo of a known one.
const suggestThreshold = 0.85

// Resolution is the outcome of [Policy.ResolveVoice].
type Resolution struct {
	// Profile is the selected voice.
	Profile Profile

	// Mode is the mode whose pair supplied Profile. It differs from the
	// requested mode when Fallback is true.
	Mode Mode

	// Fallback is true when the requested mode was unknown and the default
	// mode's pair was used instead.
	Fallback bool

	// Suggestion is the known mode closest to an unknown requested mode, or
	// "" when nothing is similar enough. Only set when Fallback is true.
	Suggestion Mode
}

// Policy maps (mode, gender) pairs to voice profiles. It is immutable and
// safe for concurrent use.
type Policy struct {
	modes    map[Mode]Pair
	def      Mode
	disabled map[Mode]struct{}
}

// NewPolicy validates t and builds a [Policy] from it. Every pair must carry
// both voices, and the default mode must have a pair and must not be
// voice-disabled. Violations are reported as a [*ValidationError].
func NewPolicy(t Table) (*Policy, error) {
	if len(t.Modes) == 0 {
		return nil, &ValidationError{Field: "modes", Reason: "at least one mode is required"}
	}
	p := &Policy{
		modes:    make(map[Mode]Pair, len(t.Modes)),
		def:      t.Default,
		disabled: make(map[Mode]struct{}, len(t.Disabled)),
	}
	for mode, pair := range t.Modes {
		if mode == "" {
			return nil, &ValidationError{Field: "mode", Reason: "mode identifier must not be empty"}
		}
		if !pair.complete() {
			return nil, &ValidationError{Field: "mode", Value: string(mode), Reason: "both male and female voice ids are required"}
		}
		if pair.Male.Gender == "" {
			pair.Male.Gender = GenderMale
		}
		if pair.Female.Gender == "" {
			pair.Female.Gender = GenderFemale
		}
		if pair.Male.Gender != GenderMale || pair.Female.Gender != GenderFemale {
			return nil, &ValidationError{Field: "mode", Value: string(mode), Reason: "voice gender does not match its slot"}
		}
		p.modes[mode] = pair
	}
	if _, ok := p.modes[t.Default]; !ok {
		return nil, &ValidationError{Field: "default_mode", Value: string(t.Default), Reason: "default mode has no voice pair"}
	}
	for _, m := range t.Disabled {
		if m == t.Default {
			return nil, &ValidationError{Field: "default_mode", Value: string(m), Reason: "default mode must not be voice-disabled"}
		}
		p.disabled[m] = struct{}{}
	}
	return p, nil
}

// MustDefaultPolicy returns the policy for [DefaultTable]. It panics if the
// built-in table is inconsistent, which would be a programming error.
func MustDefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultTable())
	if err != nil {
		panic(fmt.Sprintf("voice: built-in table: %v", err))
	}
	return p
}

// IsVoiceEnabled reports whether mode may speak. Only modes in the disabled
// set return false; unknown modes are enabled and fall back to the default.
func (p *Policy) IsVoiceEnabled(mode Mode) bool {
	_, off := p.disabled[mode]
	return !off
}

// ResolveVoice returns the voice for mode and gender.
//
// Disabled modes yield [ErrVoiceDisabled]; an invalid gender yields a
// [*ValidationError]. Unknown modes resolve against the default mode and are
// flagged through [Resolution.Fallback] and a debug log record.
func (p *Policy) ResolveVoice(mode Mode, gender Gender) (Resolution, error) {
	if !gender.IsValid() {
		return Resolution{}, &ValidationError{Field: "gender", Value: string(gender), Reason: "must be male or female"}
	}
	if !p.IsVoiceEnabled(mode) {
		return Resolution{}, ErrVoiceDisabled
	}
	if pair, ok := p.modes[mode]; ok {
		return Resolution{Profile: pair.For(gender), Mode: mode}, nil
	}

	res := Resolution{
		Profile:    p.modes[p.def].For(gender),
		Mode:       p.def,
		Fallback:   true,
		Suggestion: p.suggest(mode),
	}
	slog.Debug("voice: unknown mode, using default voice",
		"mode", mode,
		"default_mode", p.def,
		"suggestion", res.Suggestion,
	)
	return res, nil
}

// DefaultMode returns the fallback mode.
func (p *Policy) DefaultMode() Mode {
	return p.def
}

// Modes returns all modes that have a voice pair, sorted.
func (p *Policy) Modes() []Mode {
	return slices.Sorted(maps.Keys(p.modes))
}

// Disabled returns the voice-disabled modes, sorted.
func (p *Policy) Disabled() []Mode {
	return slices.Sorted(maps.Keys(p.disabled))
}

// Pair returns the voice pair configured for mode.
func (p *Policy) Pair(mode Mode) (Pair, bool) {
	pair, ok := p.modes[mode]
	return pair, ok
}

// suggest returns the known mode most similar to mode, or "".
func (p *Policy) suggest(mode Mode) Mode {
	in := strings.ToLower(string(mode))
	if in == "" {
		return ""
	}
	var (
		best      Mode
		bestScore float64
	)
	for _, known := range p.Modes() {
		score := matchr.JaroWinkler(in, string(known), false)
		if score > bestScore {
			best, bestScore = known, score
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return best
}

// Entry describes one mode in [Policy.Catalogue].
type Entry struct {
	Mode    Mode     `json:"mode"`
	Enabled bool     `json:"enabled"`
	Default bool     `json:"default,omitempty"`
	Male    *Profile `json:"male,omitempty"`
	Female  *Profile `json:"female,omitempty"`
}

// Catalogue lists every known mode, those with a voice pair and those that
// are only disabled, sorted by mode.
func (p *Policy) Catalogue() []Entry {
	seen := make(map[Mode]struct{}, len(p.modes)+len(p.disabled))
	var out []Entry
	for mode, pair := range p.modes {
		male, female := pair.Male, pair.Female
		seen[mode] = struct{}{}
		out = append(out, Entry{
			Mode:    mode,
			Enabled: p.IsVoiceEnabled(mode),
			Default: mode == p.def,
			Male:    &male,
			Female:  &female,
		})
	}
	for mode := range p.disabled {
		if _, ok := seen[mode]; !ok {
			out = append(out, Entry{Mode: mode})
		}
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(string(a.Mode), string(b.Mode)) })
	return out
}
