package pipeline

// Labels for tests an examiner can declare. Classifier output outside
// this set is coerced to LabelOther rather than dropped, so a
// low-confidence or novel phrasing still surfaces in the report.
const (
	LabelLumbarROM        = "lumbar_rom"
	LabelStraightLegRaise = "straight_leg_raise"
	LabelCervicalROM      = "cervical_rom"
	LabelGait             = "gait"
	LabelNeuroReflex      = "neuro_reflex"
	LabelPalpation        = "palpation"
	LabelWaddell          = "waddell"
	LabelOrthopedic       = "orthopedic"
	LabelCognitive        = "cognitive"
	LabelOther            = "other"
)

var taxonomy = map[string]struct{}{
	LabelLumbarROM:        {},
	LabelStraightLegRaise: {},
	LabelCervicalROM:      {},
	LabelGait:             {},
	LabelNeuroReflex:      {},
	LabelPalpation:        {},
	LabelWaddell:          {},
	LabelOrthopedic:       {},
	LabelCognitive:        {},
	LabelOther:            {},
}

// KnownLabel reports whether label is part of the test taxonomy.
func KnownLabel(label string) bool {
	_, ok := taxonomy[label]
	return ok
}

// Labels returns the taxonomy in a stable order.
func Labels() []string {
	return []string{
		LabelLumbarROM,
		LabelStraightLegRaise,
		LabelCervicalROM,
		LabelGait,
		LabelNeuroReflex,
		LabelPalpation,
		LabelWaddell,
		LabelOrthopedic,
		LabelCognitive,
		LabelOther,
	}
}
