// Package lro tracks a long-running generation operation until it reports a
// terminal outcome.
//
// A Poller owns the per-job polling state: the attempt counter, the backoff
// and the pending timer. Queries never overlap; the next one is scheduled
// only after the previous one resolved. Backoff and jitter apply to "not done
// yet" answers only; a failed status query ends the job immediately.
//
//	Idle -> Polling -> {Succeeded, Failed, Exhausted, Cancelled}
//
// Scheduling goes through Clock so tests can fire ticks by hand.
package lro
