package browser

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/awardscan/scrapecore/models"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		wantW  int
		wantH  int
		wantOK bool
	}{
		{
			name:   "xrandr",
			out:    "Screen 0: minimum 320 x 200, current 2560 x 1440, maximum 16384 x 16384",
			wantW:  2560,
			wantH:  1440,
			wantOK: true,
		},
		{"garbage", "no resolution here", 0, 0, false},
		{"zero", "current 0 x 0,", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := parseResolution(xrandrRe, tt.out)
			if tt.wantOK != (err == nil) {
				t.Fatalf("err = %v, wantOK %v", err, tt.wantOK)
			}
			if err == nil && (w != tt.wantW || h != tt.wantH) {
				t.Errorf("resolution = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestRandomGeometry_WithinScreen(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for seed := int64(0); seed < 50; seed++ {
		rnd.Seed(seed)
		g := randomGeometry(rnd, 1920, 1080)

		if g.Width < int(0.8*1920) || g.Width > 1920 {
			t.Errorf("seed %d: width %d outside [1536, 1920]", seed, g.Width)
		}
		if g.Height < int(0.8*1080) || g.Height > 1080 {
			t.Errorf("seed %d: height %d outside [864, 1080]", seed, g.Height)
		}
		if g.X < 0 || g.X+g.Width > 1920 || g.Y < 0 || g.Y+g.Height > 1080 {
			t.Errorf("seed %d: window %+v exceeds the screen", seed, g)
		}
	}
}

func TestProxyHostOf(t *testing.T) {
	host, err := proxyHostOf("http://gw.proxyvendor.io:8000")
	if err != nil || host != "gw.proxyvendor.io" {
		t.Errorf("proxyHostOf = %q, %v", host, err)
	}

	if host, err := proxyHostOf(""); err != nil || host != "" {
		t.Errorf("empty server: %q, %v", host, err)
	}

	for _, bad := range []string{"not a url at all", "//missing-scheme", "http://"} {
		_, err := proxyHostOf(bad)
		if err == nil {
			t.Errorf("proxyHostOf(%q) accepted a malformed URL", bad)
			continue
		}
		var se *models.ScrapeError
		if !errors.As(err, &se) || se.Code != models.ErrCodeConfiguration {
			t.Errorf("proxyHostOf(%q) error = %v, want CONFIGURATION_ERROR", bad, err)
		}
	}
}

func TestNullRouteRules_CoverTelemetry(t *testing.T) {
	rules := nullRouteRules()
	if rules == "" {
		t.Fatal("no null-route rules generated")
	}
	for _, d := range []string{"update.googleapis.com", "google-analytics.com"} {
		if want := "MAP " + d + " 0.0.0.0"; !strings.Contains(rules, want) {
			t.Errorf("rules missing %q", want)
		}
	}
}
