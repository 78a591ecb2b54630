package models

// Sensitivities recognized by the profile editor. Stored values outside this
// list are still passed through to the reasoning prompt.
var KnownSensitivities = []string{
	"PCOS",
	"BV",
	"Sensitive Skin",
	"Allergies",
	"Dermatitis",
	"Endometriosis",
	"Yeast Infections",
	"Vulvodynia",
}

type UserSensitivityProfile struct {
	UserID        string   `json:"user_id"`
	Sensitivities []string `json:"sensitivities"`
}
