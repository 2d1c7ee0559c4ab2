// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"github.com/wneessen/fixtrail/internal/geobus"
	"github.com/wneessen/fixtrail/internal/geobus/provider/geoclue"
	"github.com/wneessen/fixtrail/internal/geobus/provider/geoip"
	"github.com/wneessen/fixtrail/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/fixtrail/internal/geobus/provider/gpsd"
	"github.com/wneessen/fixtrail/internal/geobus/provider/nmea"
	"github.com/wneessen/fixtrail/internal/gpspoll"
	"github.com/wneessen/fixtrail/internal/http"
	"github.com/wneessen/fixtrail/internal/locclient"
)

// selectGeobusProviders returns the real location providers enabled in the config. An empty
// selection is reported by the location client when connecting.
func (s *Service) selectGeobusProviders() []geobus.Provider {
	sources := s.config.Sources
	var provider []geobus.Provider

	if !sources.GeolocationFile.Disable {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(sources.GeolocationFile.File))
	}
	if !sources.GPSD.Disable {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(sources.GPSD.Host, sources.GPSD.Port))
	}
	if !sources.GeoClue.Disable {
		provider = append(provider, geoclue.NewGeolocationGeoClueProvider(sources.GeoClue.DesktopID))
	}
	if sources.NMEA.Device != "" {
		provider = append(provider, nmea.NewGeolocationNMEAProvider(sources.NMEA.Device, sources.NMEA.Baud))
	}
	if !sources.GeoIP.Disable {
		provider = append(provider, geoip.NewGeolocationGeoIPProvider(http.New(s.logger)))
	}

	return provider
}

// selectPoller returns the gpsd poller backing the last-location lookup, or nil if gpsd is
// disabled.
func (s *Service) selectPoller() locclient.Poller {
	if s.config.Sources.GPSD.Disable {
		return nil
	}
	return gpspoll.New(s.config.Sources.GPSD.Host, s.config.Sources.GPSD.Port)
}
