package orchestrator

import (
	"fmt"
	"slices"
	"strings"
)

// MergeProposals is the reducer for the proposals field: a key-wise union
// where b wins on conflicting keys. Neither input is modified. Fan-out
// siblings write disjoint keys, so the result does not depend on the order
// in which sibling updates are folded in.
func MergeProposals(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ReduceUpdates folds sibling updates into one Update using the per-field
// reducers. Only fields that can have concurrent writers are combined;
// the fan-out contract forbids siblings from writing anything else.
func ReduceUpdates(updates ...Update) (Update, error) {
	var out Update
	for _, u := range updates {
		if u.Documents != nil || u.NeedsRevision != nil || u.PendingFeedback != nil ||
			u.ActiveUnit != nil || u.SelectedOutcome != nil {
			return Update{}, fmt.Errorf("merge: fan-out branch wrote a single-writer field")
		}
		out.Proposals = MergeProposals(out.Proposals, u.Proposals)
		out.Degraded = append(out.Degraded, u.Degraded...)
	}
	return out, nil
}

// checkEnrollment verifies the proposal keys are exactly the enrolled
// worker set: nothing missing, nothing extra.
func checkEnrollment(proposals map[string]string, enrolled []string) error {
	var missing, extra []string
	want := make(map[string]bool, len(enrolled))
	for _, name := range enrolled {
		want[name] = true
		if _, ok := proposals[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range proposals {
		if !want[name] {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	slices.Sort(missing)
	slices.Sort(extra)
	return fmt.Errorf("merge: proposal keys do not match enrolled workers (missing: %s; extra: %s)",
		strings.Join(missing, ", "), strings.Join(extra, ", "))
}
