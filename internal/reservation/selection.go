package reservation

// Satisfies reports whether the slot fits the party and starts no earlier
// than the requested time.
func (s Slot) Satisfies(p TargetParameters) bool {
	return s.MaxSize >= p.PartySize && !s.Start.Before(p.EarliestStart())
}

// Compatible returns the slots that satisfy p, keeping the order Resy
// returned them in.
func Compatible(p TargetParameters, available []Slot) []Slot {
	var out []Slot
	for _, s := range available {
		if s.Satisfies(p) {
			out = append(out, s)
		}
	}
	return out
}
