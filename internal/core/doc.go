// Package core implements the talk import pipeline, independent of any
// transport or storage engine.
//
// # Flow
//
//  1. [Intake] hashes a submitted file and creates a PENDING [ImportJob],
//     or returns the existing job for identical content.
//  2. A [JobStarter] triggers the import: the [Dispatcher] queues it for a
//     worker, or the [Runner] runs it inline.
//  3. The [Runner] opens the file, builds a [TalkReader] (which validates the
//     header), skips rows already processed, and reads fixed-size batches.
//  4. The [BatchWriter] validates each row, skips natural-key duplicates and
//     inserts new talks through a [TalkStore].
//  5. After every batch the runner checkpoints the job through a [JobStore]
//     using a compare-and-swap on the job version.
//
// # Fault isolation
//
// A malformed or invalid row is counted as failed and never stops the job.
// A bad header, an unreadable file or a store error marks the job FAILED,
// keeping the counters of the last checkpoint. Re-running a job resumes
// after its cursor; duplicates written by an uncheckpointed batch are
// detected by natural key and counted as skipped.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError].
package core
