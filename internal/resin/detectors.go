package resin

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"tilexfer/internal/codec"
)

var (
	detectorsMu sync.RWMutex
	detectors   = map[string]Detector{
		"tem": TEMTissue,
	}
)

// RegisterDetector installs a named detector. Bindings with heavier
// dependencies register themselves here.
func RegisterDetector(name string, detect Detector) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	detectors[name] = detect
}

// LookupDetector resolves a detector by name.
func LookupDetector(name string) (Detector, error) {
	detectorsMu.RLock()
	defer detectorsMu.RUnlock()
	detect, ok := detectors[name]
	if !ok {
		names := make([]string, 0, len(detectors))
		for n := range detectors {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown detector %q (available: %v)", name, names)
	}
	return detect, nil
}

// TEMTissue reports whether a transmission electron microscopy subtile
// contains tissue. Resin-only tiles are bright and flat: a single tight
// intensity peak, high mean, low deviation. Thresholds were tuned against
// Luxel Tape EM captures.
func TEMTissue(img *codec.Image) bool {
	n := img.Width * img.Height
	if n == 0 {
		return false
	}

	var hist [20]int
	var sum float64
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			v := img.GraySample(x, y)
			hist[int(v)*20/256]++
			sum += float64(v)
		}
	}
	mean := sum / float64(n)

	if countPeaks(hist[:], n) != 1 {
		return true
	}
	if mean <= 185 {
		return true
	}

	var variance float64
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			d := float64(img.GraySample(x, y)) - mean
			variance += d * d
		}
	}
	stdev := math.Sqrt(variance / float64(n))
	return stdev >= 11
}

// countPeaks counts strict local maxima above a support floor. The floor
// scales with tile size so a bin needs a meaningful share of the pixels
// to register as a peak.
func countPeaks(hist []int, total int) int {
	floor := total / 20
	if floor < 1 {
		floor = 1
	}
	peaks := 0
	for i := range hist {
		v := hist[i]
		if v < floor {
			continue
		}
		left := 0
		if i > 0 {
			left = hist[i-1]
		}
		right := 0
		if i < len(hist)-1 {
			right = hist[i+1]
		}
		if v > left && v > right {
			peaks++
		}
	}
	return peaks
}
