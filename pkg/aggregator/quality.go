package aggregator

import (
	"strconv"
	"strings"

	"github.com/MunifTanjim/go-ptt"

	"streamplex/pkg/provider"
)

const (
	rankOriginal = 2200
	rankAuto     = 1000
	rankDefault  = 500
)

// qualityRank maps a stream's quality label to a sortable number. Resolution
// labels map to their pixel height, adaptive streams sit between 720p and
// 1080p, and untouched source rips outrank 4K.
func qualityRank(s provider.Stream) int {
	label := strings.ToLower(strings.TrimSpace(s.Quality))

	switch label {
	case "original":
		return rankOriginal
	case "auto", "adaptive", "hls":
		return rankAuto
	case "4k", "uhd":
		return 2160
	}

	if n, ok := resolutionNumber(label); ok {
		return n
	}

	// Provider labels are free-form. Fall back to release-title parsing on
	// the label and then the stream title.
	if n, ok := parsedResolution(s.Quality); ok {
		return n
	}
	if n, ok := parsedResolution(s.Title); ok {
		return n
	}
	return rankDefault
}

func resolutionNumber(label string) (int, bool) {
	label = strings.TrimSuffix(label, "p")
	switch label {
	case "2160", "1440", "1080", "720", "480", "360", "240":
		n, _ := strconv.Atoi(label)
		return n, true
	}
	return 0, false
}

func parsedResolution(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	res := strings.ToLower(ptt.Parse(text).Resolution)
	if res == "" {
		return 0, false
	}
	if strings.Contains(res, "4k") {
		return 2160, true
	}
	digits := strings.TrimFunc(res, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if n, err := strconv.Atoi(digits); err == nil && n > 0 {
		return n, true
	}
	return 0, false
}
