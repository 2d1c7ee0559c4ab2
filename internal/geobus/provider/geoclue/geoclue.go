// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/fixtrail/internal/geobus"
)

const (
	name = "geoclue"

	DefaultDesktopID = "fixtrail"

	busName          = "org.freedesktop.GeoClue2"
	managerPath      = "/org/freedesktop/GeoClue2/Manager"
	managerInterface = "org.freedesktop.GeoClue2.Manager"
	clientInterface  = "org.freedesktop.GeoClue2.Client"
	locationIface    = "org.freedesktop.GeoClue2.Location"
	propertiesSet    = "org.freedesktop.DBus.Properties.Set"
	signalMember     = "LocationUpdated"

	// GCLUE_ACCURACY_LEVEL_EXACT
	accuracyLevelExact = uint32(8)
	signalBufferSize   = 8
)

var ErrUnexpectedSignal = errors.New("unexpected LocationUpdated signal body")

// GeolocationGeoClueProvider receives location updates from the GeoClue2 system service. Every
// LocationUpdated signal is emitted as a result; a lost bus connection is retried after period.
type GeolocationGeoClueProvider struct {
	name      string
	desktopID string
	period    time.Duration
	ttl       time.Duration
	watchFn   func(ctx context.Context, desktopID string, emit func(geobus.Coordinate)) error
}

func NewGeolocationGeoClueProvider(desktopID string) *GeolocationGeoClueProvider {
	if desktopID == "" {
		desktopID = DefaultDesktopID
	}
	return &GeolocationGeoClueProvider{
		name:      name,
		desktopID: desktopID,
		period:    time.Second * 30,
		ttl:       time.Minute * 10,
		watchFn:   watchGeoClue,
	}
}

func (p *GeolocationGeoClueProvider) Name() string {
	return p.name
}

func (p *GeolocationGeoClueProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		emit := func(coord geobus.Coordinate) {
			if !coord.Valid() {
				return
			}
			select {
			case <-ctx.Done():
			case out <- p.createResult(key, coord):
			}
		}

		for {
			// geoclue unavailable or client stopped, retry after period
			_ = p.watchFn(ctx, p.desktopID, emit)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()
	return out
}

// createResult composes and returns a Result using provided coordinate and metadata.
func (p *GeolocationGeoClueProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
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

// watchGeoClue creates a GeoClue client on the system bus and calls emit for every location
// update until the bus connection ends or ctx is canceled.
func watchGeoClue(ctx context.Context, desktopID string, emit func(geobus.Coordinate)) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	var clientPath dbus.ObjectPath
	manager := conn.Object(busName, managerPath)
	if err = manager.CallWithContext(ctx, managerInterface+".GetClient", 0).Store(&clientPath); err != nil {
		return fmt.Errorf("failed to get geoclue client: %w", err)
	}

	client := conn.Object(busName, clientPath)
	if err = client.CallWithContext(ctx, propertiesSet, 0, clientInterface, "DesktopId",
		dbus.MakeVariant(desktopID)).Err; err != nil {
		return fmt.Errorf("failed to set geoclue desktop id: %w", err)
	}
	if err = client.CallWithContext(ctx, propertiesSet, 0, clientInterface, "RequestedAccuracyLevel",
		dbus.MakeVariant(accuracyLevelExact)).Err; err != nil {
		return fmt.Errorf("failed to set geoclue accuracy level: %w", err)
	}

	if err = conn.AddMatchSignal(dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientInterface),
		dbus.WithMatchMember(signalMember),
	); err != nil {
		return fmt.Errorf("failed to subscribe to geoclue location updates: %w", err)
	}
	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)

	if err = client.CallWithContext(ctx, clientInterface+".Start", 0).Err; err != nil {
		return fmt.Errorf("failed to start geoclue client: %w", err)
	}
	defer func() {
		_ = client.Call(clientInterface+".Stop", 0).Err
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sgn, ok := <-sigCh:
			if !ok {
				return nil
			}
			locationPath, err := locationPathFromSignal(sgn)
			if err != nil {
				continue
			}
			coord, err := readLocation(conn.Object(busName, locationPath))
			if err != nil {
				continue
			}
			emit(coord)
		}
	}
}

// locationPathFromSignal returns the path of the new location object of a LocationUpdated
// signal, whose body is (old, new).
func locationPathFromSignal(sgn *dbus.Signal) (dbus.ObjectPath, error) {
	if sgn == nil || sgn.Name != clientInterface+"."+signalMember || len(sgn.Body) != 2 {
		return "", ErrUnexpectedSignal
	}
	path, ok := sgn.Body[1].(dbus.ObjectPath)
	if !ok || !path.IsValid() {
		return "", ErrUnexpectedSignal
	}
	return path, nil
}

// propertyGetter is the subset of dbus.BusObject used to read a location object.
type propertyGetter interface {
	GetProperty(p string) (dbus.Variant, error)
}

func readLocation(obj propertyGetter) (geobus.Coordinate, error) {
	var coord geobus.Coordinate
	for prop, target := range map[string]*float64{
		"Latitude":  &coord.Lat,
		"Longitude": &coord.Lon,
		"Accuracy":  &coord.Acc,
	} {
		variant, err := obj.GetProperty(locationIface + "." + prop)
		if err != nil {
			return coord, fmt.Errorf("failed to read geoclue location property %s: %w", prop, err)
		}
		val, ok := variant.Value().(float64)
		if !ok {
			return coord, fmt.Errorf("geoclue location property %s is not a double", prop)
		}
		*target = val
	}
	return coord, nil
}
