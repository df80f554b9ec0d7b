package fetch

import (
	"bytes"
	"net/http"
)

// WallDetector decides whether a response looks like a bot wall rather than
// real content, which makes a rendered fetch worth its cost.
type WallDetector struct {
	BodyLengthThreshold int
}

// NewWallDetector creates a detector; threshold 0 uses the default.
func NewWallDetector(threshold int) *WallDetector {
	if threshold == 0 {
		threshold = 1024
	}
	return &WallDetector{BodyLengthThreshold: threshold}
}

var wallMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("cf-browser-verification"),
	[]byte("cf-challenge"),
	[]byte("just a moment"),
	[]byte("access denied"),
	[]byte("are you a robot"),
	[]byte("enable javascript and cookies"),
}

// Walled reports whether the status/body pair looks like an anti-bot wall.
func (d *WallDetector) Walled(status int, body []byte) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	if status != http.StatusOK {
		return false
	}
	if len(body) == 0 {
		return true
	}
	if len(body) < d.BodyLengthThreshold {
		lower := bytes.ToLower(body)
		for _, marker := range wallMarkers {
			if bytes.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}
