package trajectory

import "time"

// Milestone is a named event on a mission timeline. Body optionally names
// the celestial body the event relates to.
type Milestone struct {
	Time        time.Time `json:"time"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Body        string    `json:"body,omitempty"`
}

// ActiveMilestones returns the milestones whose time is at or before t,
// in their original order.
func ActiveMilestones(ms []Milestone, t time.Time) []Milestone {
	var out []Milestone
	for _, m := range ms {
		if !m.Time.After(t) {
			out = append(out, m)
		}
	}
	return out
}

// NextMilestone returns the earliest milestone strictly after t.
func NextMilestone(ms []Milestone, t time.Time) (Milestone, bool) {
	var (
		next  Milestone
		found bool
	)
	for _, m := range ms {
		if m.Time.After(t) && (!found || m.Time.Before(next.Time)) {
			next, found = m, true
		}
	}
	return next, found
}
