// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/fixtrail/internal/location"
)

var i18nVars = map[string]localize.MsgID{
	"lastknown": "Last known location",
	"nofix":     "No location fix yet",
	"sunrise":   "Sunrise",
	"sunset":    "Sunset",
	"unknown":   "unknown",
}

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"naturalTime":   p.naturalTime,
		"floatFormat":   p.floatFormat,
		"loc":           p.loc,
		"coords":        p.coords,
		"meters":        p.meters,
		"provider":      p.provider,
		"pad":           pad,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (p *Presenter) loc(val string) string {
	val = strings.ToLower(val)
	if raw, ok := i18nVars[val]; ok {
		return p.localizer.Get(raw)
	}
	return val
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) naturalTime(val time.Time) string {
	return p.humanizer.NaturalTime(val)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// coords formats the position of a fix as "lat, lon" with the shortest exact representation.
func (p *Presenter) coords(fix location.Fix) string {
	return strconv.FormatFloat(fix.Latitude, 'f', -1, 64) + ", " +
		strconv.FormatFloat(fix.Longitude, 'f', -1, 64)
}

// meters formats an accuracy radius rounded to whole meters.
func (p *Presenter) meters(acc float64) string {
	return fmt.Sprintf(p.localizer.Get("within %d meters"), int(math.Round(acc)))
}

func (p *Presenter) provider(name string) string {
	if name == "" {
		name = p.loc("unknown")
	}
	return fmt.Sprintf(p.localizer.Get("%s provider"), name)
}

// pad fills val with spaces up to the given display width. Wider values are kept as is.
func pad(val string, width int) string {
	return runewidth.FillRight(val, width)
}
