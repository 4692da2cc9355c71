// Package schedule manages deferred and recurring send intents.
//
// A Schedule is created from a validated Spec and persisted; the
// runner evaluates due schedules on a fixed tick, claims each one with
// a compare-and-set store update, then fires it through the dispatch
// layer. The claim-before-fire ordering is what keeps a schedule from
// double-sending when more than one runner shares the database.
//
// Once schedules fire at most one time and end up done; cron schedules
// advance along their cron phase and stay active until paused or
// cancelled. Occurrences that fall due while a schedule is paused are
// skipped, never replayed.
package schedule
