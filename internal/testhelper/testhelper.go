// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package testhelper contains helpers shared by the package tests.
package testhelper

import (
	"net/http"
	"os"
	"testing"
)

// MockRoundTripper is a http.RoundTripper that answers every request with Fn.
type MockRoundTripper struct {
	Fn func(*http.Request) (*http.Response, error)
}

func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// PerformIntegrationTests skips the calling test unless FIXTRAIL_INTEGRATION is set.
func PerformIntegrationTests(t *testing.T) {
	t.Helper()
	if os.Getenv("FIXTRAIL_INTEGRATION") == "" {
		t.Skip("skipping integration test, set FIXTRAIL_INTEGRATION to run it")
	}
}
