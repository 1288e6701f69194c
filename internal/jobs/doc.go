// Package jobs persists render job history in SQLite.
//
// One row per job records the chapter, terminal status, segment counts, and
// error detail so `reel history` can show past runs. The database is an
// audit trail, not coordination state; the live job is tracked in memory by
// the render package.
package jobs
