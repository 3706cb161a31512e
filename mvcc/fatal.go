package mvcc

import "github.com/rs/zerolog/log"

// Fatal reports an unrecoverable invariant violation: a corrupted watermark
// ordering, an unsupported isolation level reaching the visibility oracle,
// or any other condition that implies the version chains this package
// maintains are no longer trustworthy. Recovery is not attempted — the
// caller's process should be restarted from a clean state, the same policy
// _examples/original_source/Src/leanstore/concurrency/ConcurrencyControl.cpp
// applies via Log::Fatal.
//
// This logs at error level rather than zerolog's Fatal level (which calls
// os.Exit) so the panic — and this package's tests that assert on it via
// recover — stay in control of process lifetime instead of the logger.
func Fatal(msg string) {
	log.Error().Str("component", "mvcc").Msg(msg)
	panic("mvcc: fatal: " + msg)
}
