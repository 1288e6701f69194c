// Package render assembles a chapter's finished video from per-segment
// stills and narration clips.
//
// The scheduler partitions segments into bounded concurrent batches, each
// segment render streams effect-engine frames into an external encoder, and
// the resulting clips are losslessly concatenated in ascending segment-id
// order and published with an atomic rename. Jobs are all-or-nothing: one
// failed segment fails the job and no output is produced. Progress and
// cooperative cancellation live in a per-job Tracker shared by reference
// with external pollers.
package render
