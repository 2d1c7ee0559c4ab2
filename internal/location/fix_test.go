// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"math"
	"testing"
	"time"
)

func TestFix_IsZero(t *testing.T) {
	if !(Fix{}).IsZero() {
		t.Error("expected empty fix to be zero")
	}
	if (Fix{Provider: "gps"}).IsZero() {
		t.Error("expected fix with provider to be non-zero")
	}
}

func TestFix_Valid(t *testing.T) {
	tests := []struct {
		name  string
		lat   float64
		lon   float64
		valid bool
	}{
		{"boulder", 40.0, -105.0, true},
		{"north pole", 90, 0, true},
		{"latitude too large", 90.1, 0, false},
		{"longitude too small", 0, -180.1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fix := Fix{Latitude: tc.lat, Longitude: tc.lon}
			if fix.Valid() != tc.valid {
				t.Errorf("expected valid to be %t for %f/%f", tc.valid, tc.lat, tc.lon)
			}
		})
	}
}

func TestFix_DistanceTo(t *testing.T) {
	t.Run("same position has no distance", func(t *testing.T) {
		fix := Fix{Latitude: 40.0, Longitude: -105.0}
		if d := fix.DistanceTo(fix); d != 0 {
			t.Errorf("expected distance to be 0, got %f", d)
		}
	})
	t.Run("one thousandth of a degree latitude", func(t *testing.T) {
		a := Fix{Latitude: 40.0, Longitude: -105.0}
		b := Fix{Latitude: 40.001, Longitude: -105.0}
		want := EarthRadius * 0.001 * math.Pi / 180
		if d := a.DistanceTo(b); math.Abs(d-want) > 0.01 {
			t.Errorf("expected distance to be %f, got %f", want, d)
		}
	})
}

func TestNewUpdateConfig(t *testing.T) {
	conf := NewUpdateConfig()
	if conf.Interval != time.Second*5 {
		t.Errorf("expected interval to be 5s, got %s", conf.Interval)
	}
	if conf.SmallestDisplacement != 0 {
		t.Errorf("expected smallest displacement to be 0, got %f", conf.SmallestDisplacement)
	}
}
