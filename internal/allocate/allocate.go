// Package allocate implements the pure signup allocation algorithm.
//
// Given an event's active signups in creation order, it assigns every
// signup to exactly one of {its chosen quota, the event-wide open quota,
// the waitlist queue} and computes its 1-based position within that
// bucket. The pass is a single scan that never revisits a placed signup,
// which is what gives first-come-first-served fairness: removing a
// signup can only improve or preserve the placement of those behind it.
//
// The function is deterministic and touches no I/O; callers are
// responsible for supplying the input in (createdAt, id) order and for
// persisting the result.
package allocate

import "github.com/evreg/signupd/internal/model"

// Assign computes the canonical assignment for the given signups.
//
// The signups must be ordered by (CreatedAt, ID) ascending and carry
// their quota's capacity in QuotaSize (nil means unlimited).
// openQuotaSize is the event's shared overflow capacity; zero disables
// the open quota. The returned slice is index-aligned with the input.
func Assign(signups []model.Signup, openQuotaSize int) []model.Assignment {
	quotaCounts := make(map[string]int, 8)
	openCount := 0
	queueCount := 0

	out := make([]model.Assignment, 0, len(signups))
	for _, s := range signups {
		switch {
		case s.QuotaSize == nil || quotaCounts[s.QuotaID] < *s.QuotaSize:
			quotaCounts[s.QuotaID]++
			out = append(out, model.Assignment{
				SignupID: s.ID,
				Status:   model.StatusInQuota,
				Position: quotaCounts[s.QuotaID],
			})
		case openCount < openQuotaSize:
			openCount++
			out = append(out, model.Assignment{
				SignupID: s.ID,
				Status:   model.StatusInOpenQuota,
				Position: openCount,
			})
		default:
			queueCount++
			out = append(out, model.Assignment{
				SignupID: s.ID,
				Status:   model.StatusInQueue,
				Position: queueCount,
			})
		}
	}
	return out
}

// Diff compares the computed assignments against the previously
// persisted statuses of the same (index-aligned) signups.
//
// Changed holds every assignment whose (status, position) differs from
// the stored pair and therefore needs a row update. Promoted holds the
// signups that left the queue this run. Demoted counts signups whose
// stored status was not in-queue (including never-assigned) and whose
// new status is in-queue.
type Diff struct {
	Changed  []model.Assignment
	Promoted []model.Signup
	Demoted  int
}

// Compare builds the Diff between the stored state carried on signups
// and the freshly computed assignments.
func Compare(signups []model.Signup, assignments []model.Assignment) Diff {
	var d Diff
	for i, a := range assignments {
		prev := signups[i]
		if prev.Status == nil || *prev.Status != a.Status || prev.Position == nil || *prev.Position != a.Position {
			d.Changed = append(d.Changed, a)
		}
		wasQueued := prev.Status != nil && *prev.Status == model.StatusInQueue
		if wasQueued && a.Status != model.StatusInQueue {
			d.Promoted = append(d.Promoted, prev)
		}
		if !wasQueued && a.Status == model.StatusInQueue {
			d.Demoted++
		}
	}
	return d
}
