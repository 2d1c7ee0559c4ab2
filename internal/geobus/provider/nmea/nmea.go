// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nmea

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"

	"github.com/wneessen/fixtrail/internal/geobus"
)

const (
	name = "nmea"

	DefaultBaud = 9600

	// user equivalent range error of a consumer receiver, multiplied with HDOP
	uereMeters       = 5.0
	fallbackAccuracy = 25.0
	statusValid      = "A"
)

// GeolocationNMEAProvider reads NMEA 0183 sentences from a serial GPS receiver. Every valid RMC
// sentence is emitted as a result; the accuracy is estimated from the HDOP of the latest GGA
// sentence. A closed or failing port is reopened after period.
type GeolocationNMEAProvider struct {
	name   string
	device string
	baud   int
	period time.Duration
	ttl    time.Duration
	openFn func(device string, baud int) (io.ReadCloser, error)
}

func NewGeolocationNMEAProvider(device string, baud int) *GeolocationNMEAProvider {
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &GeolocationNMEAProvider{
		name:   name,
		device: device,
		baud:   baud,
		period: time.Second * 10,
		ttl:    time.Minute * 2,
		openFn: openSerial,
	}
}

func (p *GeolocationNMEAProvider) Name() string {
	return p.name
}

func (p *GeolocationNMEAProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		for {
			// port unavailable or closed, retry after period
			_ = p.read(ctx, key, out)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()
	return out
}

// read opens the device and forwards results until the port hits EOF, fails, or ctx is canceled.
func (p *GeolocationNMEAProvider) read(ctx context.Context, key string, out chan<- geobus.Result) error {
	port, err := p.openFn(p.device, p.baud)
	if err != nil {
		return fmt.Errorf("failed to open serial device %q: %w", p.device, err)
	}

	// unblock the scanner on cancel
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	var dec decoder
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		coord, ok := dec.feed(scanner.Text())
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- p.createResult(key, coord):
		}
	}
	return scanner.Err()
}

// createResult composes and returns a Result using provided coordinate and metadata.
func (p *GeolocationNMEAProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            geobus.Truncate(coord.Lat, geobus.TruncPrecision),
		Lon:            geobus.Truncate(coord.Lon, geobus.TruncPrecision),
		AccuracyMeters: coord.Acc,
		Source:         p.name,
		At:             time.Now(),
		TTL:            p.ttl,
	}
}

// decoder turns a stream of NMEA lines into coordinates.
type decoder struct {
	hdop float64
}

// feed consumes one line and returns a coordinate if the line was a valid RMC sentence.
func (d *decoder) feed(line string) (geobus.Coordinate, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return geobus.Coordinate{}, false
	}
	sentence, err := gonmea.Parse(line)
	if err != nil {
		return geobus.Coordinate{}, false
	}

	switch s := sentence.(type) {
	case gonmea.GGA:
		d.hdop = s.HDOP
	case gonmea.RMC:
		if s.Validity != statusValid {
			return geobus.Coordinate{}, false
		}
		coord := geobus.Coordinate{Lat: s.Latitude, Lon: s.Longitude, Acc: d.accuracy()}
		return coord, coord.Valid()
	}
	return geobus.Coordinate{}, false
}

func (d *decoder) accuracy() float64 {
	if d.hdop > 0 {
		return d.hdop * uereMeters
	}
	return fallbackAccuracy
}

func openSerial(device string, baud int) (io.ReadCloser, error) {
	return serial.OpenPort(&serial.Config{Name: device, Baud: baud})
}
