package store

import (
	"context"
	"strings"

	"github.com/lodestone-kb/lodestone/internal/kberr"
)

// maxRepairCycles bounds the repair-and-retry protocol. Two cycles: a
// standard FTS rebuild first, then a drop-and-recreate of the index
// structure. Corruption surviving both is surfaced to the caller.
const maxRepairCycles = 2

// corruptionSignatures are the SQLite error messages that indicate a
// corrupted database or full-text index. Anything else passes through the
// guard untouched.
var corruptionSignatures = []string{
	"database disk image is malformed",
	"malformed database schema",
	"fts5: corrupt",
	"corrupt fts5 index",
	"database corruption",
}

// isCorruption reports whether err is a recognized corruption error.
func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range corruptionSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// withRepair is the corruption guard: it runs op and, on a recognized
// corruption error, invalidates cached prepared statements, repairs the
// full-text index, and retries op exactly once per repair cycle. The first
// cycle rebuilds the FTS index in place; the second drops and recreates the
// index structure before rebuilding. After maxRepairCycles the corruption
// error is surfaced, kind-tagged, with the original error in the chain.
// Non-corruption errors pass through immediately.
func withRepair[T any](ctx context.Context, s *Store, op func() (T, error)) (T, error) {
	result, err := op()
	if err == nil || !isCorruption(err) {
		return result, err
	}

	for cycle := 1; cycle <= maxRepairCycles; cycle++ {
		s.logger.Warn("index corruption detected, repairing",
			"cycle", cycle, "err", err)

		if repairErr := s.repairFTS(ctx, cycle); repairErr != nil {
			s.logger.Error("index repair failed", "cycle", cycle, "err", repairErr)
			// Repair itself failing is treated the same as the retry
			// failing: move on to the next, more aggressive cycle.
		}

		result, err = op()
		if err == nil || !isCorruption(err) {
			return result, err
		}
	}

	return result, kberr.Wrap(kberr.KindIndexCorruption, err, "repair exhausted")
}

// repairFTS rebuilds the full-text index from the resource rows. Cycle 1
// issues the FTS5 'rebuild' command against the existing index; cycle 2 (or
// higher) drops the index and its triggers entirely and recreates them
// before rebuilding.
func (s *Store) repairFTS(ctx context.Context, cycle int) error {
	s.invalidateStatements()

	if cycle > 1 {
		if _, err := s.db.ExecContext(ctx, ftsDropSchema); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, ftsSchema); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO resources_fts(resources_fts) VALUES('rebuild')`)
	return err
}
