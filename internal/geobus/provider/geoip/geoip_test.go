// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	stdhttp "net/http"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/fixtrail/internal/geobus"
	"github.com/wneessen/fixtrail/internal/http"
	"github.com/wneessen/fixtrail/internal/logger"
	"github.com/wneessen/fixtrail/internal/testhelper"
)

const testResponse = `{"ip":"192.0.2.1","country_code":"US","country_name":"United States",` +
	`"region_code":"NY","region_name":"New York","city":"New York","zip_code":"10013",` +
	`"time_zone":"America/New_York","latitude":40.7185123,"longitude":-74.0025456,"metro_code":501}`

func testProvider(fn func(*stdhttp.Request) (*stdhttp.Response, error)) *GeolocationGeoIPProvider {
	client := http.New(logger.NewLogger(slog.LevelError, io.Discard))
	client.Transport = testhelper.MockRoundTripper{Fn: fn}
	return NewGeolocationGeoIPProvider(client)
}

func jsonResponse(body string) func(*stdhttp.Request) (*stdhttp.Response, error) {
	return func(*stdhttp.Request) (*stdhttp.Response, error) {
		return &stdhttp.Response{
			StatusCode: 200,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(stdhttp.Header),
		}, nil
	}
}

func TestGeolocationGeoIPProvider_Name(t *testing.T) {
	provider := testProvider(jsonResponse(testResponse))
	if provider.Name() != name {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
}

func TestGeolocationGeoIPProvider_locate(t *testing.T) {
	t.Run("lookup succeeds", func(t *testing.T) {
		provider := testProvider(jsonResponse(testResponse))
		coord, err := provider.locate(t.Context())
		if err != nil {
			t.Fatalf("failed to locate: %s", err)
		}
		if math.Abs(coord.Lat-40.718512) > 1e-9 {
			t.Errorf("expected latitude to be truncated to 40.718512, got %f", coord.Lat)
		}
		if math.Abs(coord.Lon+74.002545) > 1e-9 {
			t.Errorf("expected longitude to be truncated to -74.002545, got %f", coord.Lon)
		}
		if coord.Acc != geobus.AccuracyZip {
			t.Errorf("expected accuracy to be %d, got %f", geobus.AccuracyZip, coord.Acc)
		}
	})
	t.Run("lookup fails", func(t *testing.T) {
		provider := testProvider(func(*stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		})
		if _, err := provider.locate(t.Context()); err == nil {
			t.Fatal("expected lookup to fail")
		}
	})
}

func TestAPIResult_accuracy(t *testing.T) {
	tests := []struct {
		name   string
		result APIResult
		want   float64
	}{
		{"empty", APIResult{}, geobus.AccuracyUnknown},
		{"country only", APIResult{CountryCode: "DE"}, geobus.AccuracyCountry},
		{"region", APIResult{CountryCode: "DE", RegionCode: "NW"}, geobus.AccuracyRegion},
		{"city", APIResult{CountryCode: "DE", RegionCode: "NW", City: "Cologne"}, geobus.AccuracyCity},
		{"zip", APIResult{CountryCode: "DE", City: "Cologne", ZipCode: "50667"}, geobus.AccuracyZip},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.result.accuracy(); got != tc.want {
				t.Errorf("expected accuracy %f, got %f", tc.want, got)
			}
		})
	}
}

func TestGeolocationGeoIPProvider_LookupStream(t *testing.T) {
	t.Run("emits once for an unchanged location", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := testProvider(jsonResponse(testResponse))
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			stream := provider.LookupStream(ctx, "test")
			result := <-stream
			if result.Source != name {
				t.Errorf("expected source to be %s, got %s", name, result.Source)
			}
			if result.Key != "test" {
				t.Errorf("expected key to be test, got %s", result.Key)
			}

			time.Sleep(provider.period * 3)
			synctest.Wait()
			select {
			case r := <-stream:
				t.Errorf("expected no further result, got %+v", r)
			default:
			}
			cancel()
			for range stream {
			}
		})
	})
}
