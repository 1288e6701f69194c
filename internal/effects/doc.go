// Package effects computes output frames for the render pipeline: simulated
// camera motion over a still image (scale-up plus a sliding crop window) and
// fade in/out implemented as a brightness ramp.
//
// Effects compose in a fixed order, pan/zoom first and fade last, and never
// stretch the source; coverage across the full pan excursion is guaranteed by
// the scale factor, not by distorting the aspect ratio.
package effects
