package engine

import (
	"regexp"
	"strings"
)

// Skill is one entry of a character's command list.
type Skill struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Wide    bool     `json:"wide"`
	Mode    WideMode `json:"mode,omitempty"`
	Instant bool     `json:"instant"`
}

// A command line looks like `Ps-01: Heavy Slash [wide:combined] [instant]`.
var (
	skillLine = regexp.MustCompile(`^\s*([A-Za-z0-9_-]+)\s*:\s*(.*?)\s*((?:\[[^\]]*\]\s*)*)$`)
	skillTag  = regexp.MustCompile(`\[([^\]]*)\]`)
)

const (
	tagWide           = "wide"
	tagWideIndividual = "wide:individual"
	tagWideCombined   = "wide:combined"
	tagInstant        = "instant"
)

// ParseSkills extracts skills from the opaque command list. Lines that do not
// look like a skill are ignored.
func ParseSkills(commands string) []Skill {
	var out []Skill
	for _, line := range strings.Split(commands, "\n") {
		m := skillLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sk := Skill{ID: m[1], Name: m[2]}
		for _, t := range skillTag.FindAllStringSubmatch(m[3], -1) {
			switch strings.ToLower(strings.TrimSpace(t[1])) {
			case tagWide, tagWideIndividual:
				sk.Wide, sk.Mode = true, WideIndividual
			case tagWideCombined:
				sk.Wide, sk.Mode = true, WideCombined
			case tagInstant:
				sk.Instant = true
			}
		}
		out = append(out, sk)
	}
	return out
}

func FindSkill(skills []Skill, id string) (Skill, bool) {
	for _, s := range skills {
		if s.ID == id {
			return s, true
		}
	}
	return Skill{}, false
}

func filterSkills(skills []Skill, keep func(Skill) bool) []Skill {
	out := []Skill{}
	for _, s := range skills {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// AttackerSkills lists skills usable by a duel attacker. Wide skills only
// appear in the wide match flow.
func AttackerSkills(c Character) []Skill {
	return filterSkills(ParseSkills(c.Commands), func(s Skill) bool { return !s.Wide })
}

// DefenderSkills lists skills usable by any defender, duel or wide.
// Instant skills resolve outside the match and wide skills cannot counter.
func DefenderSkills(c Character) []Skill {
	return filterSkills(ParseSkills(c.Commands), func(s Skill) bool { return !s.Wide && !s.Instant })
}

func WideAttackerSkills(c Character) []Skill {
	return filterSkills(ParseSkills(c.Commands), func(s Skill) bool { return s.Wide })
}

// WideDefenderSkills is DefenderSkills; kept separate so callers name the flow.
func WideDefenderSkills(c Character) []Skill {
	return DefenderSkills(c)
}
