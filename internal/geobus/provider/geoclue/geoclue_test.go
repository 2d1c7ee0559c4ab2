// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"math"
	"testing"
	"testing/synctest"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/fixtrail/internal/geobus"
)

type fakeLocation map[string]any

func (f fakeLocation) GetProperty(p string) (dbus.Variant, error) {
	val, ok := f[p]
	if !ok {
		return dbus.Variant{}, errors.New("no such property")
	}
	return dbus.MakeVariant(val), nil
}

func TestNewGeolocationGeoClueProvider(t *testing.T) {
	t.Run("empty desktop id falls back to default", func(t *testing.T) {
		provider := NewGeolocationGeoClueProvider("")
		if provider.desktopID != DefaultDesktopID {
			t.Errorf("expected desktop id %s, got %s", DefaultDesktopID, provider.desktopID)
		}
		if provider.Name() != name {
			t.Errorf("expected name %s, got %s", name, provider.Name())
		}
	})
}

func TestLocationPathFromSignal(t *testing.T) {
	valid := &dbus.Signal{
		Name: clientInterface + "." + signalMember,
		Body: []any{dbus.ObjectPath("/"), dbus.ObjectPath("/org/freedesktop/GeoClue2/Location/1")},
	}
	path, err := locationPathFromSignal(valid)
	if err != nil {
		t.Fatalf("failed to read location path: %s", err)
	}
	if path != "/org/freedesktop/GeoClue2/Location/1" {
		t.Errorf("unexpected location path: %s", path)
	}

	tests := []struct {
		name string
		sgn  *dbus.Signal
	}{
		{"nil signal", nil},
		{"wrong member", &dbus.Signal{Name: clientInterface + ".Other", Body: valid.Body}},
		{"short body", &dbus.Signal{Name: valid.Name, Body: []any{dbus.ObjectPath("/")}}},
		{"wrong type", &dbus.Signal{Name: valid.Name, Body: []any{"/", "/a"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := locationPathFromSignal(tc.sgn); !errors.Is(err, ErrUnexpectedSignal) {
				t.Errorf("expected error %s, got %v", ErrUnexpectedSignal, err)
			}
		})
	}
}

func TestReadLocation(t *testing.T) {
	t.Run("all properties present", func(t *testing.T) {
		coord, err := readLocation(fakeLocation{
			locationIface + ".Latitude":  52.52,
			locationIface + ".Longitude": 13.405,
			locationIface + ".Accuracy":  30.0,
		})
		if err != nil {
			t.Fatalf("failed to read location: %s", err)
		}
		if coord.Lat != 52.52 || coord.Lon != 13.405 || coord.Acc != 30 {
			t.Errorf("unexpected coordinate: %+v", coord)
		}
	})
	t.Run("missing property fails", func(t *testing.T) {
		_, err := readLocation(fakeLocation{locationIface + ".Latitude": 52.52})
		if err == nil {
			t.Fatal("expected reading location to fail")
		}
	})
	t.Run("wrong property type fails", func(t *testing.T) {
		_, err := readLocation(fakeLocation{
			locationIface + ".Latitude":  "52.52",
			locationIface + ".Longitude": 13.405,
			locationIface + ".Accuracy":  30.0,
		})
		if err == nil {
			t.Fatal("expected reading location to fail")
		}
	})
}

func TestGeolocationGeoClueProvider_LookupStream(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		provider := NewGeolocationGeoClueProvider("test")
		provider.watchFn = func(ctx context.Context, desktopID string, emit func(geobus.Coordinate)) error {
			if desktopID != "test" {
				t.Errorf("expected desktop id test, got %s", desktopID)
			}
			emit(geobus.Coordinate{Lat: 100, Lon: 0, Acc: 5})
			emit(geobus.Coordinate{Lat: 52.52, Lon: 13.405, Acc: 30})
			<-ctx.Done()
			return nil
		}
		ctx, cancel := context.WithCancel(t.Context())
		stream := provider.LookupStream(ctx, "test")

		result := <-stream
		if math.Abs(result.Lat-52.52) > 1e-5 || result.Source != name || result.AccuracyMeters != 30 {
			t.Errorf("unexpected result: %+v", result)
		}
		cancel()
		for range stream {
		}
	})
}
