package match

import "github.com/DoyleJ11/skirmish-client/internal/engine"

// SideError is emitted on bus.TopicMatchError. Ref is zero for match-level
// errors.
type SideError struct {
	Ref     SideRef `json:"ref"`
	Message string  `json:"message"`
}

// View is a plain copy of the coordinator state for rendering.
type View struct {
	Active   bool             `json:"active"`
	MatchID  string           `json:"matchId,omitempty"`
	Type     engine.MatchType `json:"matchType,omitempty"`
	Mode     engine.WideMode  `json:"mode,omitempty"`
	Resolved bool             `json:"resolved"`
	Waiting  []SideRef        `json:"waiting,omitempty"`
	Sides    []SideView       `json:"sides,omitempty"`
	Preview  *engine.Preview  `json:"preview,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func (c *Coordinator) Snapshot() View {
	in := c.current
	if in == nil {
		return View{Error: c.lastErr}
	}

	v := View{
		Active:   true,
		MatchID:  in.matchID,
		Type:     in.kind,
		Mode:     in.mode,
		Resolved: in.resolved,
		Error:    c.lastErr,
	}
	for _, s := range in.sides {
		v.Sides = append(v.Sides, s.view(c.controls(s.ref.CharacterID)))
		if s.phase != PhaseLocked {
			v.Waiting = append(v.Waiting, s.ref)
		}
	}
	v.Preview = in.preview()
	return v
}

// preview needs an attacker result; defenders without one are left out.
func (in *instance) preview() *engine.Preview {
	atk := in.attacker()
	if atk.result == nil {
		return nil
	}
	var defenders []engine.DefenderPreview
	for _, s := range in.sides[1:] {
		if s.disabled || s.result == nil {
			continue
		}
		defenders = append(defenders, engine.DefenderPreview{CharacterID: s.ref.CharacterID, Range: s.result.Range()})
	}
	mode := engine.WideIndividual
	if in.kind == engine.MatchWide && in.mode != "" {
		mode = in.mode
	}
	p := engine.Aggregate(mode, atk.result.Range(), defenders)
	return &p
}

// Side returns the view of one side of the active match.
func (c *Coordinator) Side(ref SideRef) (SideView, bool) {
	if c.current == nil {
		return SideView{}, false
	}
	s := c.current.find(ref)
	if s == nil {
		return SideView{}, false
	}
	return s.view(c.controls(ref.CharacterID)), true
}
