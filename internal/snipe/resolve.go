package snipe

import "github.com/example/resy-sniper/internal/reservation"

// Resolve returns the slots of the earliest-launched successful outcome.
// Completion order does not matter.
func Resolve(outcomes []Outcome) ([]reservation.Slot, bool) {
	for _, o := range outcomes {
		if o.Succeeded() {
			return o.Slots, true
		}
	}
	return nil, false
}
