package engine

// DamageRange is the min/max of a computed command.
type DamageRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefenderPreview pairs a defender with the range it is compared against.
type DefenderPreview struct {
	CharacterID CharacterID `json:"characterId"`
	Range       DamageRange `json:"range"`
}

// Preview is what the declaration panel shows before resolution.
type Preview struct {
	Mode      WideMode          `json:"mode"`
	Attacker  DamageRange       `json:"attacker"`
	Defenders []DefenderPreview `json:"defenders,omitempty"`
	Combined  *DamageRange      `json:"combined,omitempty"`
}

// Aggregate builds the damage preview. Individual mode compares each defender
// on its own against the single attacker roll; combined mode sums every
// defender range into one total.
func Aggregate(mode WideMode, attacker DamageRange, defenders []DefenderPreview) Preview {
	p := Preview{Mode: mode, Attacker: attacker}
	switch mode {
	case WideCombined:
		total := DamageRange{}
		for _, d := range defenders {
			total.Min += d.Range.Min
			total.Max += d.Range.Max
		}
		p.Combined = &total
	default:
		p.Mode = WideIndividual
		p.Defenders = append([]DefenderPreview(nil), defenders...)
	}
	return p
}
