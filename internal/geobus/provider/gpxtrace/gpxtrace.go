// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpxtrace replays the track points of a GPX file as location results. It backs the
// mock mode of the location client.
package gpxtrace

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wneessen/fixtrail/internal/geobus"
)

const (
	name = "mock"

	DefaultInterval = 5 * time.Second
	// DefaultAccuracy is used for track points without an hdop element.
	DefaultAccuracy = 3.0

	uereMeters = 5.0
)

var ErrEmptyTrace = errors.New("gpx trace contains no usable track points")

// Point is a single track point of a GPX trace.
type Point struct {
	Lat  float64   `xml:"lat,attr"`
	Lon  float64   `xml:"lon,attr"`
	Ele  float64   `xml:"ele"`
	Time time.Time `xml:"time"`
	HDOP float64   `xml:"hdop"`
}

type gpxSegment struct {
	Points []Point `xml:"trkpt"`
}

type gpxTrack struct {
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxRoot struct {
	XMLName   xml.Name   `xml:"gpx"`
	Tracks    []gpxTrack `xml:"trk"`
	Waypoints []Point    `xml:"wpt"`
}

// Parse reads a GPX document and returns its track points in order. Documents without tracks
// fall back to their waypoints. Points with coordinates out of range are dropped.
func Parse(r io.Reader) ([]Point, error) {
	var root gpxRoot
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to decode GPX: %w", err)
	}

	var points []Point
	for _, track := range root.Tracks {
		for _, segment := range track.Segments {
			points = append(points, segment.Points...)
		}
	}
	if len(points) == 0 {
		points = root.Waypoints
	}

	valid := points[:0]
	for _, point := range points {
		if (geobus.Coordinate{Lat: point.Lat, Lon: point.Lon}).Valid() {
			valid = append(valid, point)
		}
	}
	if len(valid) == 0 {
		return nil, ErrEmptyTrace
	}
	return valid, nil
}

// Load parses the GPX file at path.
func Load(path string) ([]Point, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPX file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return Parse(file)
}

// GeolocationGPXProvider emits one track point per interval, starting with the first point
// immediately. After the last point the stream stays open without further results.
type GeolocationGPXProvider struct {
	name     string
	points   []Point
	interval time.Duration
}

func NewGeolocationGPXProvider(points []Point, interval time.Duration) *GeolocationGPXProvider {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &GeolocationGPXProvider{
		name:     name,
		points:   points,
		interval: interval,
	}
}

func (p *GeolocationGPXProvider) Name() string {
	return p.name
}

func (p *GeolocationGPXProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		for i, point := range p.points {
			if i > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.interval):
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- p.createResult(key, point):
			}
		}
		<-ctx.Done()
	}()
	return out
}

// createResult composes and returns a Result for a replayed track point. Replayed results never
// expire, so the replay is not displaced by stale real providers.
func (p *GeolocationGPXProvider) createResult(key string, point Point) geobus.Result {
	acc := DefaultAccuracy
	if point.HDOP > 0 {
		acc = point.HDOP * uereMeters
	}
	return geobus.Result{
		Key:            key,
		Lat:            point.Lat,
		Lon:            point.Lon,
		Alt:            point.Ele,
		AccuracyMeters: acc,
		Source:         p.name,
		At:             time.Now(),
	}
}
