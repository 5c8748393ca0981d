package content

// Phase is one step of the Detection Development Life Cycle. Items only
// move forward through the sequence; there is no regress operation.
type Phase string

const (
	PhaseRequirement Phase = "requirement"
	PhaseDesign      Phase = "design"
	PhaseDevelopment Phase = "development"
	PhaseTesting     Phase = "testing"
	PhaseDeployed    Phase = "deployed"
	PhaseMonitoring  Phase = "monitoring"
)

// Phases is the fixed DDLC sequence, in order.
var Phases = []Phase{
	PhaseRequirement,
	PhaseDesign,
	PhaseDevelopment,
	PhaseTesting,
	PhaseDeployed,
	PhaseMonitoring,
}

// IsValid reports whether the phase is part of the DDLC sequence.
func (p Phase) IsValid() bool {
	return p.Index() >= 0
}

// Index returns the position of the phase in the sequence, or -1 if the
// phase is unknown.
func (p Phase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

// Next returns the following phase. Advancing from the terminal phase
// returns the terminal phase itself.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 {
		return p
	}
	if i+1 >= len(Phases) {
		return Phases[len(Phases)-1]
	}
	return Phases[i+1]
}

// IsTerminal reports whether the phase is the last one in the sequence.
func (p Phase) IsTerminal() bool {
	return p == Phases[len(Phases)-1]
}
