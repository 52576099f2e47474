package simulation

import (
	"errors"
	"fmt"
	"sort"
)

// Verify checks the run against the allocation guarantees:
//   - no worker was assigned the same item twice,
//   - no item collected submissions from more than Q workers,
//   - the server stored exactly the judgments the workers were told it did.
//
// Submitter counts only cover this run, so a server with earlier judgments
// may hide a quota overrun on items it had already started.
func Verify(res *Result) error {
	var problems []error

	workers := make([]string, 0, len(res.Seen))
	for id := range res.Seen {
		workers = append(workers, id)
	}
	sort.Strings(workers)
	for _, id := range workers {
		seen := make(map[string]struct{}, len(res.Seen[id]))
		for _, item := range res.Seen[id] {
			if _, dup := seen[item]; dup {
				problems = append(problems, fmt.Errorf("worker %s was assigned %s twice", id, item))
			}
			seen[item] = struct{}{}
		}
	}

	q := res.Report.Quota
	for item, ws := range res.Submitters {
		if q > 0 && len(ws) > q {
			problems = append(problems, fmt.Errorf("item %s has %d submitters, quota is %d", item, len(ws), q))
		}
	}

	if got := res.Report.Overview.Judgments - res.Baseline; got != res.Stats.Recorded {
		problems = append(problems, fmt.Errorf("server stored %d judgments during the run, workers recorded %d",
			got, res.Stats.Recorded))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrVerification, errors.Join(problems...))
}
