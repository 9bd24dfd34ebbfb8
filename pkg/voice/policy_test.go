package voice_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/murmur/pkg/voice"
)

func TestIsVoiceEnabled(t *testing.T) {
	p := voice.MustDefaultPolicy()

	tests := []struct {
		mode voice.Mode
		want bool
	}{
		{voice.ModePersonalFriend, true},
		{voice.ModeBusinessMentor, true},
		{voice.ModeStudentTutor, false},
		{"no_such_mode", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := p.IsVoiceEnabled(tt.mode); got != tt.want {
				t.Errorf("IsVoiceEnabled(%q) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestResolveVoice_KnownMode(t *testing.T) {
	p := voice.MustDefaultPolicy()

	res, err := p.ResolveVoice(voice.ModeBusinessMentor, voice.GenderFemale)
	if err != nil {
		t.Fatalf("ResolveVoice: %v", err)
	}
	if res.Profile.ID != "aura-2-athena-en" {
		t.Errorf("Profile.ID = %q, want aura-2-athena-en", res.Profile.ID)
	}
	if res.Fallback {
		t.Error("Fallback = true for a known mode")
	}
	if res.Mode != voice.ModeBusinessMentor {
		t.Errorf("Mode = %q, want %q", res.Mode, voice.ModeBusinessMentor)
	}

	male, err := p.ResolveVoice(voice.ModeBusinessMentor, voice.GenderMale)
	if err != nil {
		t.Fatalf("ResolveVoice male: %v", err)
	}
	if male.Profile.Gender != voice.GenderMale {
		t.Errorf("male profile gender = %q", male.Profile.Gender)
	}
}

func TestResolveVoice_Deterministic(t *testing.T) {
	p := voice.MustDefaultPolicy()

	first, err := p.ResolveVoice(voice.ModeBusinessMentor, voice.GenderFemale)
	if err != nil {
		t.Fatalf("ResolveVoice: %v", err)
	}
	for i := 0; i < 100; i++ {
		got, err := p.ResolveVoice(voice.ModeBusinessMentor, voice.GenderFemale)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if diff := cmp.Diff(first, got); diff != "" {
			t.Fatalf("call %d drifted (-first +got):\n%s", i, diff)
		}
	}
}

func TestResolveVoice_UnknownModeFallsBack(t *testing.T) {
	p := voice.MustDefaultPolicy()

	res, err := p.ResolveVoice("busines_mentor", voice.GenderMale)
	if err != nil {
		t.Fatalf("ResolveVoice: %v", err)
	}
	if !res.Fallback {
		t.Fatal("Fallback = false for an unknown mode")
	}
	if res.Mode != voice.ModePersonalFriend {
		t.Errorf("Mode = %q, want default %q", res.Mode, voice.ModePersonalFriend)
	}
	if res.Profile.ID != "aura-2-orion-en" {
		t.Errorf("Profile.ID = %q, want default male voice", res.Profile.ID)
	}
	if res.Suggestion != voice.ModeBusinessMentor {
		t.Errorf("Suggestion = %q, want %q", res.Suggestion, voice.ModeBusinessMentor)
	}

	res, err = p.ResolveVoice("xq", voice.GenderFemale)
	if err != nil {
		t.Fatalf("ResolveVoice: %v", err)
	}
	if res.Suggestion != "" {
		t.Errorf("Suggestion = %q for an unrelated mode, want none", res.Suggestion)
	}
}

func TestResolveVoice_Disabled(t *testing.T) {
	p := voice.MustDefaultPolicy()

	_, err := p.ResolveVoice(voice.ModeStudentTutor, voice.GenderMale)
	if !errors.Is(err, voice.ErrVoiceDisabled) {
		t.Fatalf("err = %v, want ErrVoiceDisabled", err)
	}
}

func TestResolveVoice_InvalidGender(t *testing.T) {
	p := voice.MustDefaultPolicy()

	_, err := p.ResolveVoice(voice.ModePersonalFriend, "robot")
	var verr *voice.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Field != "gender" {
		t.Errorf("Field = %q, want gender", verr.Field)
	}
}

func TestParseGender(t *testing.T) {
	tests := []struct {
		in      string
		want    voice.Gender
		wantErr bool
	}{
		{"male", voice.GenderMale, false},
		{" Female ", voice.GenderFemale, false},
		{"MALE", voice.GenderMale, false},
		{"", "", true},
		{"other", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := voice.ParseGender(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGender(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseGender(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewPolicy_Validation(t *testing.T) {
	complete := voice.Pair{
		Male:   voice.Profile{ID: "m"},
		Female: voice.Profile{ID: "f"},
	}

	tests := []struct {
		name      string
		table     voice.Table
		wantField string
	}{
		{"empty", voice.Table{}, "modes"},
		{"missing default", voice.Table{
			Modes:   map[voice.Mode]voice.Pair{"a": complete},
			Default: "b",
		}, "default_mode"},
		{"default mode disabled", voice.Table{
			Modes:    map[voice.Mode]voice.Pair{"a": complete, "b": complete},
			Default:  "a",
			Disabled: []voice.Mode{"b", "a"},
		}, "default_mode"},
		{"incomplete pair", voice.Table{
			Modes:   map[voice.Mode]voice.Pair{"a": {Male: voice.Profile{ID: "m"}}},
			Default: "a",
		}, "mode"},
		{"swapped genders", voice.Table{
			Modes: map[voice.Mode]voice.Pair{"a": {
				Male:   voice.Profile{ID: "m", Gender: voice.GenderFemale},
				Female: voice.Profile{ID: "f"},
			}},
			Default: "a",
		}, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := voice.NewPolicy(tt.table)
			var verr *voice.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}

	p, err := voice.NewPolicy(voice.Table{
		Modes:   map[voice.Mode]voice.Pair{"a": complete},
		Default: "a",
	})
	if err != nil {
		t.Fatalf("valid table: %v", err)
	}
	pair, _ := p.Pair("a")
	if pair.Male.Gender != voice.GenderMale || pair.Female.Gender != voice.GenderFemale {
		t.Errorf("genders not filled in: %+v", pair)
	}
}

func TestPolicy_Modes(t *testing.T) {
	p := voice.MustDefaultPolicy()
	want := []voice.Mode{
		voice.ModeBusinessMentor,
		voice.ModeCreativePartner,
		voice.ModeLifeCoach,
		voice.ModePersonalFriend,
		voice.ModeStudentTutor,
	}
	if diff := cmp.Diff(want, p.Modes()); diff != "" {
		t.Errorf("Modes() mismatch (-want +got):\n%s", diff)
	}
	if p.DefaultMode() != voice.ModePersonalFriend {
		t.Errorf("DefaultMode() = %q", p.DefaultMode())
	}
	if diff := cmp.Diff([]voice.Mode{voice.ModeStudentTutor}, p.Disabled()); diff != "" {
		t.Errorf("Disabled() mismatch (-want +got):\n%s", diff)
	}
}

func TestPolicy_Catalogue(t *testing.T) {
	table := voice.DefaultTable()
	table.Disabled = append(table.Disabled, "ghost")
	p, err := voice.NewPolicy(table)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	cat := p.Catalogue()
	if len(cat) != len(table.Modes)+1 {
		t.Fatalf("len = %d, want %d", len(cat), len(table.Modes)+1)
	}
	byMode := make(map[voice.Mode]voice.Entry, len(cat))
	for _, e := range cat {
		byMode[e.Mode] = e
	}
	if e := byMode["ghost"]; e.Enabled || e.Male != nil {
		t.Errorf("ghost = %+v, want disabled without voices", e)
	}
	if e := byMode[voice.ModeStudentTutor]; e.Enabled || e.Male == nil {
		t.Errorf("student_tutor = %+v, want disabled with voices", e)
	}
	e := byMode[voice.ModeBusinessMentor]
	if !e.Enabled || e.Default || e.Female.ID != "aura-2-athena-en" {
		t.Errorf("business_mentor = %+v", e)
	}
	if !byMode[voice.ModePersonalFriend].Default {
		t.Error("personal_friend should be flagged as default")
	}
	if cat[0].Mode != voice.ModeBusinessMentor {
		t.Errorf("first entry = %q, want sorted order", cat[0].Mode)
	}
}
