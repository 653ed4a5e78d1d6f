// Package services defines shared utilities consumed by the scheduler, the
// execution strategies and the daemon surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, queue names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the assembly / process / batch tool / protocol taxonomy.
//
// Every failure in the execution core is scoped to a single job; the markers
// only decide how the failure is reported, never whether the daemon survives.
package services
