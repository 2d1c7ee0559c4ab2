// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wneessen/fixtrail/internal/config"
	"github.com/wneessen/fixtrail/internal/history"
	"github.com/wneessen/fixtrail/internal/i18n"
	"github.com/wneessen/fixtrail/internal/location"
	"github.com/wneessen/fixtrail/internal/logger"
)

var (
	fixTime = time.Date(2024, 6, 21, 12, 30, 15, 0, time.Local)
	testFix = location.Fix{
		Provider:  "gps",
		Latitude:  40.7185,
		Longitude: -74.0025,
		Accuracy:  11.6,
		Time:      fixTime,
	}
	polarFix = location.Fix{
		Provider:  "network",
		Latitude:  89.9,
		Longitude: 0,
		Accuracy:  1500,
		Time:      time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC),
	}
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := strings.TrimRight(b.buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("intentionally failing") }

func testConfig(t *testing.T, header, row string) *config.Config {
	t.Helper()
	t.Setenv("FIXTRAIL_LOCALE", "en")
	conf, err := config.New()
	if err != nil {
		t.Fatalf("failed to load config: %s", err)
	}
	if header != "" {
		conf.Templates.Header = header
	}
	if row != "" {
		conf.Templates.Row = row
	}
	return conf
}

func testPresenter(t *testing.T, conf *config.Config, hist *history.History, out io.Writer) *Presenter {
	t.Helper()
	loc, err := i18n.New(conf.Locale)
	if err != nil {
		t.Fatalf("failed to create localizer: %s", err)
	}
	p, err := New(conf, loc, hist, out, logger.NewLogger(slog.LevelError, io.Discard))
	if err != nil {
		t.Fatalf("failed to create presenter: %s", err)
	}
	return p
}

func waitForLines(t *testing.T, out *syncBuffer, n int) []string {
	t.Helper()
	deadline := time.Now().Add(time.Second * 5)
	for time.Now().Before(deadline) {
		if lines := out.lines(); len(lines) >= n {
			return lines
		}
		time.Sleep(time.Millisecond * 5)
	}
	t.Fatalf("timed out waiting for %d lines, got %q", n, out.lines())
	return nil
}

func TestNew(t *testing.T) {
	t.Run("default templates parse", func(t *testing.T) {
		testPresenter(t, testConfig(t, "", ""), history.New(), io.Discard)
	})
	t.Run("broken header template fails", func(t *testing.T) {
		conf := testConfig(t, "{{.Broken", "")
		loc, _ := i18n.New("en")
		if _, err := New(conf, loc, history.New(), io.Discard, logger.NewLogger(slog.LevelError, io.Discard)); err == nil {
			t.Error("expected presenter creation to fail")
		}
	})
	t.Run("broken row template fails", func(t *testing.T) {
		conf := testConfig(t, "", "{{end}}")
		loc, _ := i18n.New("en")
		if _, err := New(conf, loc, history.New(), io.Discard, logger.NewLogger(slog.LevelError, io.Discard)); err == nil {
			t.Error("expected presenter creation to fail")
		}
	})
}

func TestPresenter_RenderRow(t *testing.T) {
	t.Run("row shows provider, position, accuracy and time", func(t *testing.T) {
		hist := history.New()
		hist.Append(testFix)
		p := testPresenter(t, testConfig(t, "",
			`{{provider .Fix.Provider}}|{{coords .Fix}}|{{meters .Fix.Accuracy}}|{{timeFormat .Fix.Time "15:04:05"}}`),
			hist, io.Discard)

		row, err := p.RenderRow(0)
		if err != nil {
			t.Fatalf("failed to render row: %s", err)
		}
		want := "gps provider|40.7185, -74.0025|within 12 meters|12:30:15"
		if row != want {
			t.Errorf("expected row %q, got %q", want, row)
		}
	})
	t.Run("default row template", func(t *testing.T) {
		hist := history.New()
		hist.Append(testFix)
		p := testPresenter(t, testConfig(t, "", ""), hist, io.Discard)
		row, err := p.RenderRow(0)
		if err != nil {
			t.Fatalf("failed to render row: %s", err)
		}
		for _, part := range []string{"0 ", "gps provider", "40.7185, -74.0025", "within 12 meters", "12:30:15"} {
			if !strings.Contains(row, part) {
				t.Errorf("expected row %q to contain %q", row, part)
			}
		}
	})
	t.Run("out of range row fails", func(t *testing.T) {
		p := testPresenter(t, testConfig(t, "", ""), history.New(), io.Discard)
		if _, err := p.RenderRow(0); !errors.Is(err, history.ErrIndexOutOfRange) {
			t.Errorf("expected error %s, got %v", history.ErrIndexOutOfRange, err)
		}
	})
}

func TestPresenter_RenderHeader(t *testing.T) {
	t.Run("header without last known fix", func(t *testing.T) {
		p := testPresenter(t, testConfig(t, "", ""), history.New(), io.Discard)
		header, err := p.RenderHeader()
		if err != nil {
			t.Fatalf("failed to render header: %s", err)
		}
		if header != "Last known location: No location fix yet" {
			t.Errorf("unexpected header: %q", header)
		}
	})
	t.Run("header with last known fix and daylight", func(t *testing.T) {
		hist := history.New()
		hist.SetLastKnown(testFix)
		p := testPresenter(t, testConfig(t,
			`{{coords .LastKnown}}|{{.HasDaylight}}|{{.Count}}`, ""), hist, io.Discard)
		header, err := p.RenderHeader()
		if err != nil {
			t.Fatalf("failed to render header: %s", err)
		}
		if header != "40.7185, -74.0025|true|0" {
			t.Errorf("unexpected header: %q", header)
		}
		ctx := p.headerContext()
		if !ctx.Sunrise.Before(ctx.Sunset) {
			t.Errorf("expected sunrise %s before sunset %s", ctx.Sunrise, ctx.Sunset)
		}
	})
	t.Run("no daylight during polar day", func(t *testing.T) {
		hist := history.New()
		hist.SetLastKnown(polarFix)
		p := testPresenter(t, testConfig(t, "", ""), hist, io.Discard)
		if p.headerContext().HasDaylight {
			t.Error("expected no sunrise and sunset during polar day")
		}
	})
	t.Run("german header", func(t *testing.T) {
		conf := testConfig(t, "", "")
		conf.Locale = "de"
		p := testPresenter(t, conf, history.New(), io.Discard)
		header, err := p.RenderHeader()
		if err != nil {
			t.Fatalf("failed to render header: %s", err)
		}
		if header != "Zuletzt bekannter Standort: Noch keine Position" {
			t.Errorf("unexpected header: %q", header)
		}
	})
}

func TestPresenter_Attach(t *testing.T) {
	rowTpl := `{{.Index}} {{.Fix.Provider}}`
	headerTpl := `header {{if .HasLastKnown}}{{.LastKnown.Provider}}{{else}}none{{end}}`

	t.Run("existing rows are caught up and new ones follow", func(t *testing.T) {
		hist := history.New()
		hist.Append(location.Fix{Provider: "a"})
		hist.Append(location.Fix{Provider: "b"})
		out := &syncBuffer{}
		p := testPresenter(t, testConfig(t, headerTpl, rowTpl), hist, out)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan struct{})
		go func() {
			p.Attach(ctx)
			close(done)
		}()
		waitForLines(t, out, 3)

		hist.SetLastKnown(location.Fix{Provider: "c"})
		waitForLines(t, out, 4)
		hist.Append(location.Fix{Provider: "c"})
		lines := waitForLines(t, out, 5)
		cancel()
		<-done

		want := []string{"header none", "0 a", "1 b", "header c", "2 c"}
		if strings.Join(lines, "\n") != strings.Join(want, "\n") {
			t.Errorf("expected lines %q, got %q", want, lines)
		}
		if p.Rendered() != 3 {
			t.Errorf("expected 3 rendered rows, got %d", p.Rendered())
		}
	})
	t.Run("reattaching does not repeat rows", func(t *testing.T) {
		hist := history.New()
		hist.Append(location.Fix{Provider: "a"})
		out := &syncBuffer{}
		p := testPresenter(t, testConfig(t, headerTpl, rowTpl), hist, out)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan struct{})
		go func() {
			p.Attach(ctx)
			close(done)
		}()
		waitForLines(t, out, 2)
		cancel()
		<-done

		// appended while detached
		hist.Append(location.Fix{Provider: "b"})

		ctx2, cancel2 := context.WithCancel(t.Context())
		defer cancel2()
		go p.Attach(ctx2)
		lines := waitForLines(t, out, 4)

		want := []string{"header none", "0 a", "header none", "1 b"}
		if strings.Join(lines, "\n") != strings.Join(want, "\n") {
			t.Errorf("expected lines %q, got %q", want, lines)
		}
	})
	t.Run("write errors are logged, not fatal", func(t *testing.T) {
		hist := history.New()
		hist.Append(testFix)
		p := testPresenter(t, testConfig(t, "", ""), hist, failWriter{})
		p.catchUp()
		if p.Rendered() != 1 {
			t.Errorf("expected row to count as rendered, got %d", p.Rendered())
		}
	})
}

func TestPad(t *testing.T) {
	tests := []struct {
		name  string
		val   string
		width int
		want  string
	}{
		{"ascii", "ab", 4, "ab  "},
		{"wide runes", "東京", 6, "東京  "},
		{"wider than width", "abcdef", 3, "abcdef"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := pad(tc.val, tc.width); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
