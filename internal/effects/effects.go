package effects

import (
	"errors"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Params controls the simulated camera motion and fade for one segment.
type Params struct {
	OutputWidth  int
	OutputHeight int
	// FadeDuration is the fade in/out length in seconds; <= 0 disables fades.
	FadeDuration float64
	UsePan       bool
	// PanRangeH and PanRangeV are the fractions of extra image reserved for
	// motion on each axis, in [0,1].
	PanRangeH float64
	PanRangeV float64
	// SegmentIndex picks the pan axis when both ranges are positive:
	// even indexes pan horizontally, odd vertically.
	SegmentIndex int
}

type axis int

const (
	axisNone axis = iota
	axisHorizontal
	axisVertical
)

// Animator produces output frames for a single segment. The source image is
// scaled exactly once at construction; each frame is a crop of that scaled
// image followed by the fade brightness ramp. Frame is safe for repeated
// sequential calls but not for concurrent use.
type Animator struct {
	scaled   *image.NRGBA
	params   Params
	duration float64
	panAxis  axis
	// maxOffset is the crop travel in pixels along the pan axis.
	maxOffset int
}

// NewAnimator prepares the scaled source for a segment of the given duration.
func NewAnimator(src image.Image, duration float64, params Params) (*Animator, error) {
	if params.OutputWidth <= 0 || params.OutputHeight <= 0 {
		return nil, errors.New("effects: output size must be positive")
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.New("effects: empty source image")
	}
	if duration <= 0 {
		return nil, errors.New("effects: duration must be positive")
	}

	panAxis := selectAxis(params)
	scale := coverScale(bounds.Dx(), bounds.Dy(), panAxis, params)
	scaledW := int(float64(bounds.Dx()) * scale)
	scaledH := int(float64(bounds.Dy()) * scale)
	if scaledW < params.OutputWidth {
		scaledW = params.OutputWidth
	}
	if scaledH < params.OutputHeight {
		scaledH = params.OutputHeight
	}

	scaled := image.NewNRGBA(image.Rect(0, 0, scaledW, scaledH))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, xdraw.Src, nil)

	maxOffset := 0
	switch panAxis {
	case axisHorizontal:
		maxOffset = scaledW - params.OutputWidth
	case axisVertical:
		maxOffset = scaledH - params.OutputHeight
	}

	return &Animator{
		scaled:    scaled,
		params:    params,
		duration:  duration,
		panAxis:   panAxis,
		maxOffset: maxOffset,
	}, nil
}

// selectAxis decides the motion axis. Pan disabled or both ranges zero means
// a static scale-to-cover center crop; a single positive range forces that
// axis; both positive alternate by segment-index parity.
func selectAxis(params Params) axis {
	if !params.UsePan {
		return axisNone
	}
	h, v := params.PanRangeH, params.PanRangeV
	switch {
	case h <= 0 && v <= 0:
		return axisNone
	case h > 0 && v > 0:
		if params.SegmentIndex%2 == 0 {
			return axisHorizontal
		}
		return axisVertical
	case v > 0:
		return axisVertical
	default:
		return axisHorizontal
	}
}

// coverScale returns the uniform scale factor that keeps the crop window
// inside the image across the whole pan excursion without stretching:
// the pan axis needs output·(1+range) pixels, the other axis just needs to
// be covered.
func coverScale(imgW, imgH int, panAxis axis, params Params) float64 {
	outW := float64(params.OutputWidth)
	outH := float64(params.OutputHeight)
	w := float64(imgW)
	h := float64(imgH)

	switch panAxis {
	case axisHorizontal:
		return math.Max(outW*(1+params.PanRangeH)/w, outH/h)
	case axisVertical:
		return math.Max(outW/w, outH*(1+params.PanRangeV)/h)
	default:
		return math.Max(outW/w, outH/h)
	}
}

// Frame renders the output frame for the given time offset. The result is
// always exactly OutputWidth by OutputHeight.
func (a *Animator) Frame(timeVal float64) *image.NRGBA {
	outW, outH := a.params.OutputWidth, a.params.OutputHeight
	scaledW := a.scaled.Bounds().Dx()
	scaledH := a.scaled.Bounds().Dy()

	// Perpendicular axis stays centered; the pan axis slides with progress.
	offsetX := (scaledW - outW) / 2
	offsetY := (scaledH - outH) / 2
	switch a.panAxis {
	case axisHorizontal:
		offsetX = int(float64(a.maxOffset) * EaseInOut(timeVal/a.duration))
	case axisVertical:
		offsetY = int(float64(a.maxOffset) * EaseInOut(timeVal/a.duration))
	}

	frame := image.NewNRGBA(image.Rect(0, 0, outW, outH))
	draw.Draw(frame, frame.Bounds(), a.scaled, image.Pt(offsetX, offsetY), draw.Src)

	// Fades are applied last so geometric transforms cannot undo them.
	if m := FadeMultiplier(timeVal, a.duration, a.params.FadeDuration); m < 1 {
		applyBrightness(frame, m)
	}
	return frame
}

// EaseInOut maps linear progress in [0,1] onto a cosine ease-in-out curve.
// Values outside the range are clamped.
func EaseInOut(progress float64) float64 {
	if progress <= 0 {
		return 0
	}
	if progress >= 1 {
		return 1
	}
	return 0.5 * (1 - math.Cos(math.Pi*progress))
}

// FadeMultiplier returns the brightness scale in [0,1] for a frame at timeVal
// in a clip of the given duration. The multiplier ramps 0 to 1 over the first
// fadeDuration seconds and 1 to 0 over the last; when the windows overlap the
// fade-in ramp wins. A non-positive fadeDuration disables fading.
func FadeMultiplier(timeVal, duration, fadeDuration float64) float64 {
	if fadeDuration <= 0 {
		return 1
	}
	brightness := 1.0
	switch {
	case timeVal < fadeDuration:
		brightness = timeVal / fadeDuration
	case duration-timeVal < fadeDuration:
		brightness = (duration - timeVal) / fadeDuration
	}
	if brightness < 0 {
		return 0
	}
	if brightness > 1 {
		return 1
	}
	return brightness
}

// applyBrightness scales the RGB channels in place. Brightness is used
// instead of alpha so fades survive encoding into alpha-less pixel formats.
func applyBrightness(img *image.NRGBA, multiplier float64) {
	if multiplier >= 1 {
		return
	}
	if multiplier < 0 {
		multiplier = 0
	}
	scale := uint32(multiplier * 65536)
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = uint8(uint32(pix[i]) * scale >> 16)
		pix[i+1] = uint8(uint32(pix[i+1]) * scale >> 16)
		pix[i+2] = uint8(uint32(pix[i+2]) * scale >> 16)
	}
}
