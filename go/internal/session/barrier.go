package session

// BarrierKind names one of the per-phase readiness gates.
type BarrierKind string

const (
	// BarrierResults gates the reveal of aggregated results after a phase
	// completes.
	BarrierResults BarrierKind = "results"
	// BarrierContinue gates the advance to the next phase after results.
	BarrierContinue BarrierKind = "continue"
)

type barrierKey struct {
	phaseIndex int
	kind       BarrierKind
}

// Barrier tracks readiness signals per (phase, kind). Marks accumulate;
// satisfaction is evaluated against the roster of the moment, so a shrinking
// roster can satisfy a barrier that was previously blocked. Owned by the
// session actor, not safe for concurrent use.
type Barrier struct {
	ready map[barrierKey]map[string]bool
}

// NewBarrier creates an empty barrier family.
func NewBarrier() *Barrier {
	return &Barrier{
		ready: make(map[barrierKey]map[string]bool),
	}
}

// Mark records a readiness signal. It returns true the first time the
// participant marks this (phase, kind) and false on replays.
func (b *Barrier) Mark(kind BarrierKind, phaseIndex int, participantID string) bool {
	key := barrierKey{phaseIndex: phaseIndex, kind: kind}
	set, ok := b.ready[key]
	if !ok {
		set = make(map[string]bool)
		b.ready[key] = set
	}
	if set[participantID] {
		return false
	}
	set[participantID] = true
	return true
}

// IsReady reports whether the participant has marked this (phase, kind).
func (b *Barrier) IsReady(kind BarrierKind, phaseIndex int, participantID string) bool {
	return b.ready[barrierKey{phaseIndex: phaseIndex, kind: kind}][participantID]
}

// ReadyCount returns the number of distinct participants marked for the
// (phase, kind), including any that have since left the roster.
func (b *Barrier) ReadyCount(kind BarrierKind, phaseIndex int) int {
	return len(b.ready[barrierKey{phaseIndex: phaseIndex, kind: kind}])
}

// Ready returns the participant IDs marked for the (phase, kind).
func (b *Barrier) Ready(kind BarrierKind, phaseIndex int) []string {
	set := b.ready[barrierKey{phaseIndex: phaseIndex, kind: kind}]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Satisfied reports whether every current roster member has marked this
// (phase, kind). Marks from non-members are ignored by construction: only
// roster membership is consulted, so a stray signal can never satisfy the
// barrier on its own.
func (b *Barrier) Satisfied(kind BarrierKind, phaseIndex int, roster Roster) bool {
	set := b.ready[barrierKey{phaseIndex: phaseIndex, kind: kind}]
	for id := range roster {
		if !set[id] {
			return false
		}
	}
	return true
}
