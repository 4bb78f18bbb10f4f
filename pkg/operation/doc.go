/*
Package operation runs the optimization pipeline over a set of files.

	+-----------+     +-----------+     +-----------+
	| Discover  | --> | Partition | --> | Executor  |
	| (walk)    |     | (batches) |     | (ants)    |
	+-----------+     +-----------+     +-----+-----+
	                                          |
	                     +--------------------+--------------------+
	                     |                    |                    |
	               +-----+-----+        +-----+-----+        +-----+-----+
	               | Processor |        |   Store   |        | Snapshot  |
	               | (chunks)  |        | (status)  |        | + metrics |
	               +-----------+        +-----------+        +-----------+

🎯 Purpose:
- Skip files that a previous run already finished
- Hand each batch to one pool worker, which handles its files in order
- Overwrite each file in place with its transformed content
- Record completed or failed per file; never abort the run for one file

🔄 Per-file flow:
1. read content (failure: record failed)
2. chunk, transform each chunk in order, join
3. empty result: leave the file alone and record nothing
4. write in place through a temp file and rename, record completed

After every batch the output snapshot and the metrics textfile are written
concurrently, then the time remaining is logged.

⚠️ Files are replaced without a backup. A crash after a write but before its
record is committed makes the next run transform the file again.

🔍 Example:

	exec, err := operation.New(operation.Options{
		Store:     store,
		Processor: &chunk.Processor{Transformer: prompter},
	})
	summary, err := exec.Run(ctx, batches, resume)
*/
package operation
