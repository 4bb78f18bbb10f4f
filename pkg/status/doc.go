/*
Package status records the per-file outcome of a run so an interrupted run can
resume where it stopped.

	            +-------------+
	            |    Store    |
	            | (interface) |
	            +------+------+
	                   |
	   +--------+------+-----+----------+
	   |        |            |          |
	+--+---+ +--+----+ +-----+----+ +---+---+
	| File | | Badger| | Postgres | | Redis |
	+------+ +-------+ +----------+ +-------+

🎯 Purpose:
- Persist one Record per file path: completed or failed (with a reason)
- Answer which paths a new run should skip (the ResumeSet)
- Render records and progress for humans

💾 File backend:
Two files live side by side in the status directory:

	optimized.txt             one completed path per line
	optimization_status.json  {"<path>": {"status": "...", "reason": null}}

Every upsert rewrites both through a temp file and rename while holding a
lock file, so a crash leaves either the old or the new content.

🔁 Resume modes:
- completed: skip files that finished (the default; failures are retried)
- terminal: skip anything with a final outcome, failed included

🔍 Example:

	store, err := status.Open(ctx, status.Options{Dir: ".llmopt"})
	defer store.Close()

	skip, err := store.LoadResumeSet(ctx, status.ResumeCompleted)
	err = store.Upsert(ctx, status.Completed(path))
*/
package status
