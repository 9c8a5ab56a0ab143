package media

import (
	"fmt"
	"math"
)

// Layout is where an image lands inside the output frame.
type Layout struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
}

// CalculateScaledDimensions fits an image of imgW x imgH inside target
// preserving aspect ratio and centers it. An image wider than the target
// fills the width and gets bars top and bottom; otherwise it fills the height
// and gets bars left and right.
func CalculateScaledDimensions(imgW, imgH int, target Resolution) (Layout, error) {
	if imgW <= 0 || imgH <= 0 {
		return Layout{}, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, imgW, imgH)
	}
	if target.Width <= 0 || target.Height <= 0 {
		return Layout{}, fmt.Errorf("%w: target %s", ErrInvalidDimensions, target)
	}

	imageAspect := float64(imgW) / float64(imgH)
	targetAspect := float64(target.Width) / float64(target.Height)

	var w, h float64
	if imageAspect > targetAspect {
		w = float64(target.Width)
		h = w / imageAspect
	} else {
		h = float64(target.Height)
		w = h * imageAspect
	}

	return Layout{
		Width:   int(math.Round(w)),
		Height:  int(math.Round(h)),
		OffsetX: int(math.Round((float64(target.Width) - w) / 2)),
		OffsetY: int(math.Round((float64(target.Height) - h) / 2)),
	}, nil
}
