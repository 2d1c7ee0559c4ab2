// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kkyr/fig"
)

const (
	configEnv = "FIXTRAIL"
	appDir    = "fixtrail"

	DefaultHeaderTpl = `{{loc "lastknown"}}: {{if .HasLastKnown}}{{coords .LastKnown}}, {{meters .LastKnown.Accuracy}}` +
		` ({{provider .LastKnown.Provider}}, {{localizedTime .LastKnown.Time}})` +
		`{{if .HasDaylight}} | {{loc "sunrise"}} {{timeFormat .Sunrise "15:04"}}` +
		` {{loc "sunset"}} {{timeFormat .Sunset "15:04"}}{{end}}{{else}}{{loc "nofix"}}{{end}}`
	DefaultRowTpl = `{{pad (printf "%d" .Index) 5}} {{pad (provider .Fix.Provider) 20}} ` +
		`{{pad (coords .Fix) 26}} {{pad (meters .Fix.Accuracy) 22}} {{timeFormat .Fix.Time "15:04:05"}}`
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`
	// MockMode replays the mock trace instead of asking the real providers. It is re-read on
	// every restart of the location session.
	MockMode bool `fig:"mock_mode"`

	Mock struct {
		File string `fig:"file"`
	} `fig:"mock"`

	Sources struct {
		GPSD struct {
			Disable bool   `fig:"disable"`
			Host    string `fig:"host" default:"localhost"`
			Port    string `fig:"port" default:"2947"`
		} `fig:"gpsd"`
		GeoClue struct {
			Disable   bool   `fig:"disable"`
			DesktopID string `fig:"desktop_id" default:"fixtrail"`
		} `fig:"geoclue"`
		NMEA struct {
			// Device enables the NMEA serial provider, e.g. /dev/ttyUSB0
			Device string `fig:"device"`
			Baud   int    `fig:"baud" default:"9600"`
		} `fig:"nmea"`
		GeolocationFile struct {
			Disable bool   `fig:"disable"`
			File    string `fig:"file"`
		} `fig:"geolocation_file"`
		GeoIP struct {
			Disable bool `fig:"disable"`
		} `fig:"geoip"`
	} `fig:"sources"`

	Templates struct {
		Header string `fig:"header"`
		Row    string `fig:"row"`
	} `fig:"templates"`

	MQTT struct {
		// Broker enables publishing of fixes, e.g. tcp://localhost:1883
		Broker   string `fig:"broker"`
		Topic    string `fig:"topic" default:"fixtrail/fix"`
		ClientID string `fig:"client_id"`
		QoS      int    `fig:"qos"`
	} `fig:"mqtt"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// FindConfigFile looks for a config file in the user's config directory and returns its
// directory and file name, or empty strings if there is none.
func FindConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", appDir, "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Templates.Header == "" {
		c.Templates.Header = DefaultHeaderTpl
	}
	if c.Templates.Row == "" {
		c.Templates.Row = DefaultRowTpl
	}

	home, _ := os.UserHomeDir()
	if c.Sources.GeolocationFile.File == "" {
		c.Sources.GeolocationFile.File = filepath.Join(home, ".config", appDir, "geolocation")
	}
	if c.Mock.File == "" {
		c.Mock.File = filepath.Join(home, ".config", appDir, "mock.gpx")
	}

	if c.Sources.GPSD.Host == "" || c.Sources.GPSD.Port == "" {
		return fmt.Errorf("invalid gpsd address: %q:%q", c.Sources.GPSD.Host, c.Sources.GPSD.Port)
	}
	if c.Sources.NMEA.Baud <= 0 {
		return fmt.Errorf("invalid NMEA baud rate: %d", c.Sources.NMEA.Baud)
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("MQTT broker %q requires a topic", c.MQTT.Broker)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT QoS: %d", c.MQTT.QoS)
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
