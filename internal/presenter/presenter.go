// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter renders the history of a location session as text: a header line for the
// last-known fix, followed by one row per received fix.
package presenter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"text/template"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"

	"github.com/wneessen/fixtrail/internal/config"
	"github.com/wneessen/fixtrail/internal/history"
	"github.com/wneessen/fixtrail/internal/i18n"
	"github.com/wneessen/fixtrail/internal/job"
	"github.com/wneessen/fixtrail/internal/location"
	"github.com/wneessen/fixtrail/internal/logger"
)

const (
	eventBufferSize = 64
	catchUpInterval = time.Second
)

// HeaderContext is the template context of the header line.
type HeaderContext struct {
	HasLastKnown bool
	LastKnown    location.Fix
	Count        int

	// Sunrise and Sunset are only set if the sun rises and sets at the last-known position
	// on the day of the fix.
	HasDaylight bool
	Sunrise     time.Time
	Sunset      time.Time
}

// RowContext is the template context of a single row.
type RowContext struct {
	Index int
	Fix   location.Fix
}

// Presenter binds to a History and writes a line for every change. It remembers how many rows
// it has written, so it can be detached and attached again without losing or repeating rows.
type Presenter struct {
	header    *template.Template
	row       *template.Template
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	history   *history.History
	logger    *logger.Logger

	mu       sync.Mutex
	out      io.Writer
	rendered int
}

func New(conf *config.Config, loc *spreak.Localizer, hist *history.History, out io.Writer,
	log *logger.Logger,
) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	p := &Presenter{
		localizer: loc,
		humanizer: collection.CreateHumanizer(i18n.ResolveTag(conf.Locale)),
		history:   hist,
		logger:    log,
		out:       out,
	}

	p.header, err = template.New("header").Funcs(p.templateFuncMap()).Parse(conf.Templates.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header template: %w", err)
	}
	p.row, err = template.New("row").Funcs(p.templateFuncMap()).Parse(conf.Templates.Row)
	if err != nil {
		return nil, fmt.Errorf("failed to parse row template: %w", err)
	}
	return p, nil
}

// Attach renders the header and all rows not written yet, then follows the history until ctx is
// canceled. Missed change events are made up for by a periodic catch-up.
func (p *Presenter) Attach(ctx context.Context) {
	events, unsub := p.history.Subscribe(eventBufferSize)
	defer unsub()

	p.printHeader()
	p.catchUp()

	go job.New(catchUpInterval, func(context.Context) { p.catchUp() }).Start(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case history.EventLastKnown:
				p.printHeader()
			case history.EventAppended:
				p.catchUp()
			}
		}
	}
}

// Rendered returns the number of rows written so far.
func (p *Presenter) Rendered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rendered
}

// RenderHeader executes the header template for the current state of the history.
func (p *Presenter) RenderHeader() (string, error) {
	return p.execute(p.header, p.headerContext())
}

// RenderRow executes the row template for the fix at index.
func (p *Presenter) RenderRow(index int) (string, error) {
	fix, err := p.history.Get(index)
	if err != nil {
		return "", err
	}
	return p.execute(p.row, RowContext{Index: index, Fix: fix})
}

func (p *Presenter) headerContext() HeaderContext {
	fix, ok := p.history.LastKnown()
	ctx := HeaderContext{
		HasLastKnown: ok,
		LastKnown:    fix,
		Count:        p.history.Count(),
	}
	if !ok {
		return ctx
	}

	day := fix.Time
	if day.IsZero() {
		day = time.Now()
	}
	rise, set := sunrise.SunriseSunset(fix.Latitude, fix.Longitude, day.Year(), day.Month(), day.Day())
	if !rise.IsZero() && !set.IsZero() {
		ctx.HasDaylight = true
		ctx.Sunrise = rise.Local()
		ctx.Sunset = set.Local()
	}
	return ctx
}

func (p *Presenter) printHeader() {
	line, err := p.RenderHeader()
	if err != nil {
		p.logger.Error("failed to render header", logger.Err(err))
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLine(line)
}

// catchUp writes a row for every fix appended since the last call.
func (p *Presenter) catchUp() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fixes := p.history.Snapshot(p.rendered)
	for i, fix := range fixes {
		index := p.rendered + i
		line, err := p.execute(p.row, RowContext{Index: index, Fix: fix})
		if err != nil {
			p.logger.Error("failed to render row", logger.Err(err))
			line = fmt.Sprintf("%d %s", index, p.coords(fix))
		}
		p.writeLine(line)
	}
	p.rendered += len(fixes)
}

// writeLine must be called with p.mu held.
func (p *Presenter) writeLine(line string) {
	if _, err := fmt.Fprintln(p.out, line); err != nil {
		p.logger.Error("failed to write output", logger.Err(err))
	}
}

func (p *Presenter) execute(tpl *template.Template, data any) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
