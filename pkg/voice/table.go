package voice

// Table is the raw voice catalogue a [Policy] is built from.
type Table struct {
	// Modes maps each known mode to its voice pair.
	Modes map[Mode]Pair

	// Default is the mode whose pair is used for unrecognised modes. It must
	// be present in Modes.
	Default Mode

	// Disabled lists modes that never speak, whether or not they have a pair.
	Disabled []Mode
}

// DefaultTable returns the built-in catalogue (Deepgram Aura-2 voices). The
// returned value is a fresh copy and may be modified by the caller.
func DefaultTable() Table {
	return Table{
		Default:  ModePersonalFriend,
		Disabled: []Mode{ModeStudentTutor},
		Modes: map[Mode]Pair{
			ModePersonalFriend: {
				Male:   Profile{ID: "aura-2-orion-en", DisplayName: "Orion", Gender: GenderMale, Language: "en", Description: "Approachable, calm, easygoing"},
				Female: Profile{ID: "aura-2-luna-en", DisplayName: "Luna", Gender: GenderFemale, Language: "en", Description: "Friendly, natural, warm"},
			},
			ModeBusinessMentor: {
				Male:   Profile{ID: "aura-2-zeus-en", DisplayName: "Zeus", Gender: GenderMale, Language: "en", Description: "Deep, trustworthy, direct"},
				Female: Profile{ID: "aura-2-athena-en", DisplayName: "Athena", Gender: GenderFemale, Language: "en", Description: "Calm, professional, composed"},
			},
			ModeCreativePartner: {
				Male:   Profile{ID: "aura-2-apollo-en", DisplayName: "Apollo", Gender: GenderMale, Language: "en", Description: "Confident, expressive, playful"},
				Female: Profile{ID: "aura-2-thalia-en", DisplayName: "Thalia", Gender: GenderFemale, Language: "en", Description: "Bright, energetic, enthusiastic"},
			},
			ModeLifeCoach: {
				Male:   Profile{ID: "aura-2-arcas-en", DisplayName: "Arcas", Gender: GenderMale, Language: "en", Description: "Smooth, grounded, encouraging"},
				Female: Profile{ID: "aura-2-hera-en", DisplayName: "Hera", Gender: GenderFemale, Language: "en", Description: "Warm, reassuring, patient"},
			},
			ModeStudentTutor: {
				Male:   Profile{ID: "aura-2-orpheus-en", DisplayName: "Orpheus", Gender: GenderMale, Language: "en", Description: "Clear, patient, measured"},
				Female: Profile{ID: "aura-2-asteria-en", DisplayName: "Asteria", Gender: GenderFemale, Language: "en", Description: "Clear, articulate, patient"},
			},
		},
	}
}
