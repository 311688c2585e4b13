package match

import (
	"fmt"

	"github.com/DoyleJ11/skirmish-client/internal/engine"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCalculating Phase = "calculating"
	PhaseCalculated  Phase = "calculated"
	PhaseLocked      Phase = "locked"
)

type Role string

const (
	RoleAttacker Role = "attacker"
	RoleDefender Role = "defender"
)

// NoGuard is the command a side that cannot act is locked with.
const NoGuard = "no-guard"

// SideRef names one declaring side of the active match.
type SideRef struct {
	Role        Role               `json:"role"`
	CharacterID engine.CharacterID `json:"characterId"`
}

func (r SideRef) String() string { return fmt.Sprintf("%s:%s", r.Role, r.CharacterID) }

// Result is a server-computed declaration.
type Result struct {
	Command      string `json:"command"`
	MinDamage    int    `json:"minDamage"`
	MaxDamage    int    `json:"maxDamage"`
	SkillDetails string `json:"skillDetails,omitempty"`
}

func (r Result) Range() engine.DamageRange {
	return engine.DamageRange{Min: r.MinDamage, Max: r.MaxDamage}
}

type side struct {
	ref      SideRef
	phase    Phase
	disabled bool
	skillID  string
	result   *Result
	err      string
	tag      string
}

// SideView is the render-facing copy of a side.
type SideView struct {
	SideRef
	Phase      Phase   `json:"phase"`
	Required   bool    `json:"required"`
	Disabled   bool    `json:"disabled"`
	Controlled bool    `json:"controlled"`
	SkillID    string  `json:"skillId,omitempty"`
	Result     *Result `json:"result,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func (s *side) lockDisabled() {
	s.disabled = true
	s.phase = PhaseLocked
	s.result = &Result{Command: NoGuard}
	s.tag = ""
}

func (s *side) view(controlled bool) SideView {
	v := SideView{
		SideRef:    s.ref,
		Phase:      s.phase,
		Required:   !s.disabled,
		Disabled:   s.disabled,
		Controlled: controlled,
		SkillID:    s.skillID,
		Error:      s.err,
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}
