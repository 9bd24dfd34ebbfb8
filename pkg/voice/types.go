// Package voice defines the voice catalogue of the companion client and the
// policy that maps a personality mode and a gender to a synthesized voice.
//
// The catalogue is static: a [Table] is assembled once (usually from
// [DefaultTable] or the voices section of the config file) and turned into an
// immutable [Policy]. A Policy has no hidden state and is safe for concurrent
// use; callers that need hot reload swap the whole Policy.
package voice

import (
	"errors"
	"fmt"
	"strings"
)

// ErrVoiceDisabled is returned by [Policy.ResolveVoice] for modes that never
// speak (for example the student tutor, which is text-only).
var ErrVoiceDisabled = errors.New("voice: mode has voice disabled")

// Gender selects one of the two voices configured for a mode.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// IsValid reports whether g is a recognised gender.
func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

// ParseGender normalises s (case and surrounding whitespace) and returns the
// matching [Gender]. Any other value yields a [*ValidationError].
func ParseGender(s string) (Gender, error) {
	g := Gender(strings.ToLower(strings.TrimSpace(s)))
	if !g.IsValid() {
		return "", &ValidationError{Field: "gender", Value: s, Reason: "must be male or female"}
	}
	return g, nil
}

// Mode is a personality mode identifier such as "business_mentor".
type Mode string

const (
	ModePersonalFriend  Mode = "personal_friend"
	ModeBusinessMentor  Mode = "business_mentor"
	ModeCreativePartner Mode = "creative_partner"
	ModeLifeCoach       Mode = "life_coach"
	ModeStudentTutor    Mode = "student_tutor"
)

// Profile describes one synthesized voice.
type Profile struct {
	// ID is the opaque provider-specific voice identifier (e.g. "aura-2-thalia-en").
	ID string `json:"id" yaml:"id"`

	// DisplayName is the human-readable label shown in settings.
	DisplayName string `json:"display_name" yaml:"display_name"`

	// Gender of the voice. Filled in from the [Pair] slot when left empty.
	Gender Gender `json:"gender" yaml:"gender"`

	// Language is a locale tag such as "en".
	Language string `json:"language" yaml:"language"`

	// Description is an optional tone/style hint. Backends that accept tone
	// instructions use it when no explicit instructions are configured.
	Description string `json:"description,omitempty" yaml:"description"`
}

// Pair holds the male and female voice of a single mode.
type Pair struct {
	Male   Profile `json:"male" yaml:"male"`
	Female Profile `json:"female" yaml:"female"`
}

// For returns the profile for g. g must be valid.
func (p Pair) For(g Gender) Profile {
	if g == GenderMale {
		return p.Male
	}
	return p.Female
}

// complete reports whether both slots carry a voice ID.
func (p Pair) complete() bool {
	return p.Male.ID != "" && p.Female.ID != ""
}

// ValidationError reports caller input that cannot be accepted: an unsupported
// gender, empty text, or an inconsistent voice table.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("voice: invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("voice: invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
