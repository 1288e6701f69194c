// Package ffprobe shells out to ffprobe and decodes its JSON output.
//
// The segment loader uses it to measure narration durations before rendering,
// and verification code uses the stream helpers to sanity-check assembled
// output containers.
package ffprobe
