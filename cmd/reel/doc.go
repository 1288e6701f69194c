// Command reel renders chapter videos from per-segment still images and
// narration audio, and inspects render history and tool availability.
package main
