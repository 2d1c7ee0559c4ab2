// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/fixtrail/internal/geobus"
	"github.com/wneessen/fixtrail/internal/gpspoll"
)

const (
	name = "gpsd"

	DefaultHost = "localhost"
	DefaultPort = "2947"
)

// GeolocationGPSDProvider streams TPV reports of a gpsd daemon. Every report with at least a 2D
// fix is emitted; a lost connection is re-established after period.
type GeolocationGPSDProvider struct {
	name    string
	addr    string
	period  time.Duration
	ttl     time.Duration
	watchFn func(ctx context.Context, addr string, emit func(gpspoll.Fix)) error
}

func NewGeolocationGPSDProvider(host, port string) *GeolocationGPSDProvider {
	return &GeolocationGPSDProvider{
		name:    name,
		addr:    net.JoinHostPort(host, port),
		period:  time.Second * 30,
		ttl:     time.Minute * 2,
		watchFn: watchGPSD,
	}
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)
		emit := func(fix gpspoll.Fix) {
			if !fix.Has2DFix() {
				return
			}
			select {
			case <-ctx.Done():
			case out <- p.createResult(key, fix):
			}
		}

		for {
			// gpsd unreachable or watch ended, retry after period
			_ = p.watchFn(ctx, p.addr, emit)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()

	return out
}

// createResult composes and returns a Result using provided fix data and metadata.
func (p *GeolocationGPSDProvider) createResult(key string, fix gpspoll.Fix) geobus.Result {
	at := fix.Time
	if at.IsZero() {
		at = time.Now()
	}
	return geobus.Result{
		Key:            key,
		Lat:            geobus.Truncate(fix.Lat, geobus.TruncPrecision),
		Lon:            geobus.Truncate(fix.Lon, geobus.TruncPrecision),
		Alt:            fix.Alt,
		AccuracyMeters: fix.Acc,
		Source:         p.name,
		At:             at,
		TTL:            p.ttl,
	}
}

// watchGPSD connects to gpsd and calls emit for every TPV report until the watch ends or ctx
// is canceled.
func watchGPSD(ctx context.Context, addr string, emit func(gpspoll.Fix)) error {
	session, err := gpsd.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %q: %w", addr, err)
	}

	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		emit(tpvToFix(tpv))
	})

	// go-gpsd has no Close(), the connection is torn down with the process
	done := session.Watch()
	select {
	case <-ctx.Done():
	case <-done:
	}
	return nil
}

func tpvToFix(tpv *gpsd.TPVReport) gpspoll.Fix {
	acc := 25.0
	if tpv.Epx > 0 && tpv.Epy > 0 {
		acc = math.Hypot(tpv.Epx, tpv.Epy)
	}
	return gpspoll.Fix{
		Lat:  tpv.Lat,
		Lon:  tpv.Lon,
		Alt:  tpv.Alt,
		Acc:  acc,
		Mode: int(tpv.Mode),
		Time: time.Now(),
	}
}
