// Package segment discovers a chapter's renderable units and loads their
// source assets.
//
// A chapter directory contains numerically-named subdirectories, each with
// exactly one image.* still and one audio.* narration clip. Discovery sorts
// by numeric ID; loading validates sizes and durations so truncated upstream
// output fails the segment instead of producing a broken clip.
package segment
