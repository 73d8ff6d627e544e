package snipe

import (
	"fmt"
	"io"
)

// FailureSummary counts one failure kind and keeps the first message seen.
// Example is empty when Count is zero.
type FailureSummary struct {
	Count   int
	Example string
}

func (s FailureSummary) HasExample() bool { return s.Count > 0 }

func (s *FailureSummary) add(f *Failure) {
	if s.Count == 0 {
		s.Example = f.Error()
	}
	s.Count++
}

// Report is the diagnostic produced when no attempt found slots. It is
// returned as the error of Sniper.FindSlots.
type Report struct {
	Attempts       int
	Infrastructure FailureSummary
	Domain         FailureSummary
}

// BuildReport aggregates the failures in outcomes, in launch order.
// Successful outcomes are ignored.
func BuildReport(outcomes []Outcome) *Report {
	r := &Report{Attempts: len(outcomes)}
	for _, o := range outcomes {
		if o.Failure == nil {
			continue
		}
		if o.Failure.Kind == KindInfrastructure {
			r.Infrastructure.add(o.Failure)
		} else {
			r.Domain.add(o.Failure)
		}
	}
	return r
}

func (r *Report) Error() string {
	if r.Attempts == 0 {
		return "no slots found: no attempts were made"
	}
	msg := fmt.Sprintf("no slots found after %d attempts: %d infrastructure failures, %d domain failures",
		r.Attempts, r.Infrastructure.Count, r.Domain.Count)
	switch {
	case r.Domain.HasExample():
		msg += " (e.g. " + r.Domain.Example + ")"
	case r.Infrastructure.HasExample():
		msg += " (e.g. " + r.Infrastructure.Example + ")"
	}
	return msg
}

// Print writes the per-kind counts and examples.
func (r *Report) Print(w io.Writer) error {
	for _, row := range []struct {
		name string
		sum  FailureSummary
	}{
		{"infrastructure", r.Infrastructure},
		{"domain", r.Domain},
	} {
		if _, err := fmt.Fprintf(w, "%s failures: %d\n", row.name, row.sum.Count); err != nil {
			return err
		}
		if row.sum.HasExample() {
			if _, err := fmt.Fprintf(w, "example %s failure: %s\n", row.name, row.sum.Example); err != nil {
				return err
			}
		}
	}
	return nil
}
