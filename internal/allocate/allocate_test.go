package allocate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evreg/signupd/internal/model"
)

func intp(v int) *int { return &v }

func statusp(s model.SignupStatus) *model.SignupStatus { return &s }

// buildSignups creates n signups in creation order, all referencing the
// same quota with the given capacity.
func buildSignups(n int, quotaID string, quotaSize *int) []model.Signup {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signups := make([]model.Signup, 0, n)
	for i := 0; i < n; i++ {
		signups = append(signups, model.Signup{
			ID:        fmt.Sprintf("s%d", i+1),
			QuotaID:   quotaID,
			QuotaSize: quotaSize,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return signups
}

func TestAssignQuotaThenOpenThenQueue(t *testing.T) {
	// Quota A size 2, open quota size 1, four signups S1..S4 on A.
	signups := buildSignups(4, "a", intp(2))

	got := Assign(signups, 1)
	require.Len(t, got, 4)

	assert.Equal(t, model.Assignment{SignupID: "s1", Status: model.StatusInQuota, Position: 1}, got[0])
	assert.Equal(t, model.Assignment{SignupID: "s2", Status: model.StatusInQuota, Position: 2}, got[1])
	assert.Equal(t, model.Assignment{SignupID: "s3", Status: model.StatusInOpenQuota, Position: 1}, got[2])
	assert.Equal(t, model.Assignment{SignupID: "s4", Status: model.StatusInQueue, Position: 1}, got[3])
}

func TestAssignRemovalPromotesInOrder(t *testing.T) {
	// Same setup as above but S1 removed: everyone moves up one slot.
	signups := buildSignups(4, "a", intp(2))[1:]

	got := Assign(signups, 1)
	require.Len(t, got, 3)

	assert.Equal(t, model.Assignment{SignupID: "s2", Status: model.StatusInQuota, Position: 1}, got[0])
	assert.Equal(t, model.Assignment{SignupID: "s3", Status: model.StatusInQuota, Position: 2}, got[1])
	assert.Equal(t, model.Assignment{SignupID: "s4", Status: model.StatusInOpenQuota, Position: 1}, got[2])
}

func TestAssignUnlimitedQuota(t *testing.T) {
	signups := buildSignups(5, "a", nil)

	got := Assign(signups, 0)
	for i, a := range got {
		assert.Equal(t, model.StatusInQuota, a.Status)
		assert.Equal(t, i+1, a.Position)
	}
}

func TestAssignZeroOpenQuotaSkipsStraightToQueue(t *testing.T) {
	signups := buildSignups(3, "a", intp(1))

	got := Assign(signups, 0)
	assert.Equal(t, model.StatusInQuota, got[0].Status)
	assert.Equal(t, model.StatusInQueue, got[1].Status)
	assert.Equal(t, 1, got[1].Position)
	assert.Equal(t, model.StatusInQueue, got[2].Status)
	assert.Equal(t, 2, got[2].Position)
}

func TestAssignEmptyInput(t *testing.T) {
	assert.Empty(t, Assign(nil, 3))
}

func TestAssignInterleavedQuotas(t *testing.T) {
	// Two quotas of size 1; the open quota absorbs one overflow from
	// each before the queue starts.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signups := []model.Signup{
		{ID: "s1", QuotaID: "a", QuotaSize: intp(1), CreatedAt: base},
		{ID: "s2", QuotaID: "b", QuotaSize: intp(1), CreatedAt: base.Add(1 * time.Second)},
		{ID: "s3", QuotaID: "a", QuotaSize: intp(1), CreatedAt: base.Add(2 * time.Second)},
		{ID: "s4", QuotaID: "b", QuotaSize: intp(1), CreatedAt: base.Add(3 * time.Second)},
		{ID: "s5", QuotaID: "a", QuotaSize: intp(1), CreatedAt: base.Add(4 * time.Second)},
	}

	got := Assign(signups, 2)
	assert.Equal(t, model.StatusInQuota, got[0].Status)
	assert.Equal(t, model.StatusInQuota, got[1].Status)
	assert.Equal(t, model.Assignment{SignupID: "s3", Status: model.StatusInOpenQuota, Position: 1}, got[2])
	assert.Equal(t, model.Assignment{SignupID: "s4", Status: model.StatusInOpenQuota, Position: 2}, got[3])
	assert.Equal(t, model.Assignment{SignupID: "s5", Status: model.StatusInQueue, Position: 1}, got[4])
}

func TestAssignDeterministic(t *testing.T) {
	signups := buildSignups(20, "a", intp(7))

	first := Assign(signups, 3)
	second := Assign(signups, 3)
	require.Equal(t, first, second)
}

func TestAssignPositionsContiguous(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var signups []model.Signup
	for i := 0; i < 30; i++ {
		quota := fmt.Sprintf("q%d", i%3)
		signups = append(signups, model.Signup{
			ID:        fmt.Sprintf("s%02d", i),
			QuotaID:   quota,
			QuotaSize: intp(4),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
	}

	got := Assign(signups, 5)

	// Positions within each scope must be exactly 1..n.
	perQuota := make(map[string][]int)
	var open, queue []int
	for i, a := range got {
		switch a.Status {
		case model.StatusInQuota:
			perQuota[signups[i].QuotaID] = append(perQuota[signups[i].QuotaID], a.Position)
		case model.StatusInOpenQuota:
			open = append(open, a.Position)
		case model.StatusInQueue:
			queue = append(queue, a.Position)
		}
	}
	checkContiguous := func(name string, positions []int) {
		for i, p := range positions {
			assert.Equal(t, i+1, p, "gap or duplicate in %s", name)
		}
	}
	for q, positions := range perQuota {
		assert.LessOrEqual(t, len(positions), 4, "quota %s over capacity", q)
		checkContiguous("quota "+q, positions)
	}
	assert.LessOrEqual(t, len(open), 5)
	checkContiguous("open quota", open)
	checkContiguous("queue", queue)
}

func TestAssignMonotonicImprovementOnRemoval(t *testing.T) {
	rank := func(s model.SignupStatus) int {
		switch s {
		case model.StatusInQuota:
			return 0
		case model.StatusInOpenQuota:
			return 1
		default:
			return 2
		}
	}

	signups := buildSignups(10, "a", intp(3))
	before := Assign(signups, 2)
	byID := make(map[string]model.Assignment, len(before))
	for _, a := range before {
		byID[a.SignupID] = a
	}

	// Removing any single signup must leave every remaining signup at an
	// equal-or-better status and equal-or-better position.
	for drop := range signups {
		remaining := make([]model.Signup, 0, len(signups)-1)
		remaining = append(remaining, signups[:drop]...)
		remaining = append(remaining, signups[drop+1:]...)

		after := Assign(remaining, 2)
		for _, a := range after {
			prev := byID[a.SignupID]
			require.LessOrEqual(t, rank(a.Status), rank(prev.Status),
				"signup %s got a worse status after removing index %d", a.SignupID, drop)
			if a.Status == prev.Status {
				require.LessOrEqual(t, a.Position, prev.Position)
			}
		}
	}
}

func TestCompare(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signups := []model.Signup{
		// Unchanged.
		{ID: "s1", QuotaID: "a", QuotaSize: intp(2), CreatedAt: base,
			Status: statusp(model.StatusInQuota), Position: intp(1)},
		// Promoted out of the queue.
		{ID: "s2", QuotaID: "a", QuotaSize: intp(2), CreatedAt: base.Add(time.Second),
			Status: statusp(model.StatusInQueue), Position: intp(1)},
		// Never assigned before.
		{ID: "s3", QuotaID: "a", QuotaSize: intp(2), CreatedAt: base.Add(2 * time.Second)},
	}
	assignments := Assign(signups, 1)

	d := Compare(signups, assignments)

	// s2 and s3 changed, s1 kept its stored pair.
	require.Len(t, d.Changed, 2)
	assert.Equal(t, "s2", d.Changed[0].SignupID)
	assert.Equal(t, "s3", d.Changed[1].SignupID)

	require.Len(t, d.Promoted, 1)
	assert.Equal(t, "s2", d.Promoted[0].ID)
	assert.Zero(t, d.Demoted)
}

func TestCompareDemotionCount(t *testing.T) {
	// Three placed signups, quota shrunk to 1 and no open quota: two of
	// them fall into the queue.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signups := []model.Signup{
		{ID: "s1", QuotaID: "a", QuotaSize: intp(1), CreatedAt: base,
			Status: statusp(model.StatusInQuota), Position: intp(1)},
		{ID: "s2", QuotaID: "a", QuotaSize: intp(1), CreatedAt: base.Add(time.Second),
			Status: statusp(model.StatusInQuota), Position: intp(2)},
		{ID: "s3", QuotaID: "a", QuotaSize: intp(1), CreatedAt: base.Add(2 * time.Second),
			Status: statusp(model.StatusInOpenQuota), Position: intp(1)},
	}
	assignments := Assign(signups, 0)

	d := Compare(signups, assignments)
	assert.Equal(t, 2, d.Demoted)
	assert.Empty(t, d.Promoted)
	require.Len(t, d.Changed, 2)
}

func TestCompareIdempotentRunHasNoChanges(t *testing.T) {
	signups := buildSignups(6, "a", intp(2))
	first := Assign(signups, 2)

	// Persist the first run's output onto the signups, then recompute.
	for i := range signups {
		signups[i].Status = statusp(first[i].Status)
		signups[i].Position = intp(first[i].Position)
	}
	d := Compare(signups, Assign(signups, 2))

	assert.Empty(t, d.Changed)
	assert.Empty(t, d.Promoted)
	assert.Zero(t, d.Demoted)
}
