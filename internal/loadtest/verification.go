package loadtest

import (
	"fmt"
	"sort"

	"github.com/okian/scoreboard/internal/domain/model"
)

// VerifyTotals compares each player's reported total with the sum of the
// deltas the run had accepted for them.
func VerifyTotals(expected map[int64]int64, standings map[int64]model.Standing) []string {
	ids := make([]int64, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []string
	for _, id := range ids {
		st, ok := standings[id]
		if !ok {
			out = append(out, fmt.Sprintf("player %d: no standing", id))
			continue
		}
		if st.Total != expected[id] {
			out = append(out, fmt.Sprintf("player %d: total %d, submitted %d", id, st.Total, expected[id]))
		}
	}
	return out
}

// VerifyTop checks that top is a correctly ordered prefix of the board
// and agrees with the standings read after it. n is the requested size.
func VerifyTop(top []model.Entry, standings map[int64]model.Standing, n int) []string {
	var out []string
	if len(top) > n {
		out = append(out, fmt.Sprintf("top returned %d rows for limit %d", len(top), n))
	}

	seen := make(map[int64]bool, len(top))
	above := int64(0)
	for i, e := range top {
		if seen[e.PlayerID] {
			out = append(out, fmt.Sprintf("player %d listed twice", e.PlayerID))
		}
		seen[e.PlayerID] = true

		if i > 0 {
			if !model.Before(top[i-1], e) {
				out = append(out, fmt.Sprintf("row %d (%d, %d) out of order", i+1, e.PlayerID, e.Total))
			}
			if top[i-1].Total > e.Total {
				above = int64(i)
			}
		}

		st, ok := standings[e.PlayerID]
		if !ok {
			continue
		}
		if st.Total != e.Total {
			out = append(out, fmt.Sprintf("player %d: top shows %d, rank shows %d", e.PlayerID, e.Total, st.Total))
		}
		if st.Rank != above+1 {
			out = append(out, fmt.Sprintf("player %d: rank %d, expected %d", e.PlayerID, st.Rank, above+1))
		}
	}

	// A full page must hold everyone scoring above its last row.
	if len(top) == n && n > 0 {
		floor := top[n-1].Total
		for id, st := range standings {
			if st.Total > floor && !seen[id] {
				out = append(out, fmt.Sprintf("player %d (%d) missing from top", id, st.Total))
			}
		}
	}
	return out
}
