package service

import "testing"

func TestNewerThanMarker(t *testing.T) {
	tests := []struct {
		name     string
		marker   string
		clientTs int64
		revision int64
		want     bool
	}{
		{"no marker yet", "", 1000, 1, true},
		{"newer client ts", "1000:5", 2000, 1, true},
		{"older client ts", "2000:1", 1000, 9, false},
		{"same ts newer revision", "1000:2", 1000, 3, true},
		{"same ts older revision", "1000:3", 1000, 2, false},
		{"exact duplicate", "1000:3", 1000, 3, false},
		{"marker missing separator", "garbage", 1, 1, true},
		{"marker non-numeric ts", "x:3", 1000, 1, true},
		{"marker non-numeric revision", "1000:y", 1000, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newerThanMarker(tt.marker, tt.clientTs, tt.revision); got != tt.want {
				t.Errorf("newerThanMarker(%q, %d, %d) = %v, want %v",
					tt.marker, tt.clientTs, tt.revision, got, tt.want)
			}
		})
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	marker := encodeMarker(1756600000123, 42)
	if marker != "1756600000123:42" {
		t.Fatalf("encodeMarker = %q", marker)
	}

	// The write that produced the marker must lose against it, and any later
	// write must win.
	if newerThanMarker(marker, 1756600000123, 42) {
		t.Error("a write is newer than its own marker")
	}
	if !newerThanMarker(marker, 1756600000123, 43) {
		t.Error("next revision does not beat the marker")
	}
	if !newerThanMarker(marker, 1756600000124, 1) {
		t.Error("later client ts does not beat the marker")
	}
}
