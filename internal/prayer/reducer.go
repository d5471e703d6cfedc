package prayer

// State is what one prayer control shows.
type State struct {
	Prayed         bool
	DisplayedCount int64
}

type actionKind int

const (
	// actionToggled is the optimistic channel: the user flipped the control.
	actionToggled actionKind = iota
	// actionAuthoritative is the reconciliation channel: the aggregate arrived.
	actionAuthoritative
)

type action struct {
	kind  actionKind
	count int64
}

// reduce is the only place State changes. An authoritative count always
// replaces whatever optimistic guess is displayed.
func reduce(s State, a action) State {
	switch a.kind {
	case actionToggled:
		s.Prayed = !s.Prayed
		if s.Prayed {
			s.DisplayedCount++
		} else {
			s.DisplayedCount--
		}
	case actionAuthoritative:
		s.DisplayedCount = a.count
	}
	return s
}
