package refiner

// Canonical subspecialty tokens. This is a closed vocabulary: the refiner is
// instructed to emit only these, and the filter builder silently ignores
// anything else.
const (
	SpecTrauma        = "trauma"
	SpecSpine         = "spine"
	SpecShoulderElbow = "shoulderelbow"
	SpecHand          = "hand"
	SpecFootAnkle     = "footankle"
	SpecPediatrics    = "pediatrics"
	SpecRecon         = "recon"
	SpecSports        = "sports"
	SpecOncology      = "oncology"
	SpecBasicScience  = "basicscience"
)

// Subspecialties lists the closed vocabulary in a stable order, for prompt
// construction and validation.
var Subspecialties = []string{
	SpecTrauma,
	SpecSpine,
	SpecShoulderElbow,
	SpecHand,
	SpecFootAnkle,
	SpecPediatrics,
	SpecRecon,
	SpecSports,
	SpecOncology,
	SpecBasicScience,
}

// specialtySynonyms maps lowercased refined-query tokens to canonical
// subspecialty tokens. Canonical tokens map to themselves so a well-behaved
// refiner output needs no translation.
var specialtySynonyms = map[string]string{
	SpecTrauma:        SpecTrauma,
	SpecSpine:         SpecSpine,
	SpecShoulderElbow: SpecShoulderElbow,
	SpecHand:          SpecHand,
	SpecFootAnkle:     SpecFootAnkle,
	SpecPediatrics:    SpecPediatrics,
	SpecRecon:         SpecRecon,
	SpecSports:        SpecSports,
	SpecOncology:      SpecOncology,
	SpecBasicScience:  SpecBasicScience,

	"shoulder and elbow":     SpecShoulderElbow,
	"shoulder & elbow":       SpecShoulderElbow,
	"sports medicine":        SpecSports,
	"adult reconstruction":   SpecRecon,
	"arthroplasty":           SpecRecon,
	"joint replacement":      SpecRecon,
	"peds":                   SpecPediatrics,
	"pediatric":              SpecPediatrics,
	"pediatric orthopaedics": SpecPediatrics,
	"foot and ankle":         SpecFootAnkle,
	"foot & ankle":           SpecFootAnkle,
	"hand surgery":           SpecHand,
	"tumor":                  SpecOncology,
	"orthopaedic oncology":   SpecOncology,
	"basic science":          SpecBasicScience,
}

// regionSynonyms maps a region token to the canonical region strings actually
// stored on corpus cards. A single region concept may fan out to several
// stored values (e.g. "footankle" cards are tagged "foot" or "ankle").
var regionSynonyms = map[string][]string{
	"shoulder":       {"shoulder"},
	"elbow":          {"elbow"},
	"forearm":        {"forearm"},
	"wrist":          {"wrist"},
	"hand":           {"hand"},
	"handwrist":      {"hand", "wrist"},
	"hip":            {"hip"},
	"femur":          {"femur"},
	"knee":           {"knee"},
	"tibia":          {"tibia"},
	"ankle":          {"ankle"},
	"foot":           {"foot"},
	"footankle":      {"foot", "ankle"},
	"spine":          {"spine"},
	"cervical spine": {"spine"},
	"lumbar spine":   {"spine"},
	"pelvis":         {"pelvis"},
	"humerus":        {"humerus"},
}

// IsSubspecialty reports whether token is part of the closed vocabulary.
func IsSubspecialty(token string) bool {
	for _, s := range Subspecialties {
		if s == token {
			return true
		}
	}
	return false
}
