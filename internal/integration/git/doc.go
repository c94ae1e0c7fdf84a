// Package git computes read-only repository state for open documents.
//
// A Worker shells out to the git executable and assembles a Snapshot:
//
//   - Branch from `git rev-parse --abbrev-ref HEAD`
//   - per-file status from `git status --porcelain -z`, propagated to parent
//     directories (modified beats added beats untracked)
//   - a change summary from `git diff --numstat HEAD`
//   - per-line status for each open document from `git diff HEAD -- <path>`,
//     with untracked files marked as entirely added
//
// # Usage
//
// The worker runs off the consumer goroutine and at most one run is in
// flight. The consumer polls once per tick:
//
//	w := git.NewWorker(root)
//	_ = w.Spawn(ctx, []git.DocumentRequest{{Path: abs, LineCount: n}})
//
//	// later, every tick
//	if snap, ok, err := w.Poll(); ok {
//	    if err != nil {
//	        // the run panicked; report and keep the old snapshot
//	    }
//	    current = snap // replaced wholesale
//	}
//
// Any git step that fails yields no data for that step. A missing git
// executable is reported separately through Snapshot.Unavailable.
//
// The parsers (ParsePorcelainZ, ParseNumstat, ParseLineStatus, ParseHunks) are
// exported and pure so they can be tested against fixed output.
package git
