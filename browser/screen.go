package browser

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
)

// Geometry is the window size and position passed to the browser.
type Geometry struct {
	Width, Height int
	X, Y          int
}

var (
	xrandrRe   = regexp.MustCompile(`current\s+(\d+)\s*x\s*(\d+)`)
	profilerRe = regexp.MustCompile(`Resolution:\s+(\d+)\s*x\s*(\d+)`)
)

// detectScreen returns the primary display resolution using OS-specific
// tooling. Detection failure is non-fatal: the configured fallback is
// used and the failure logged, since a wrong-but-plausible screen size
// only weakens the fingerprint, it does not break the session.
func detectScreen(fallbackW, fallbackH int) (int, int) {
	w, h, err := detectScreenOS()
	if err != nil {
		slog.Debug("screen detection failed, using fallback",
			"os", runtime.GOOS, "fallback", fmt.Sprintf("%dx%d", fallbackW, fallbackH), "error", err)
		return fallbackW, fallbackH
	}
	return w, h
}

func detectScreenOS() (int, int, error) {
	switch runtime.GOOS {
	case "linux":
		out, err := exec.Command("xrandr", "--current").Output()
		if err != nil {
			return 0, 0, err
		}
		return parseResolution(xrandrRe, string(out))
	case "darwin":
		out, err := exec.Command("system_profiler", "SPDisplaysDataType").Output()
		if err != nil {
			return 0, 0, err
		}
		return parseResolution(profilerRe, string(out))
	default:
		return 0, 0, fmt.Errorf("no screen detection for %s", runtime.GOOS)
	}
}

func parseResolution(re *regexp.Regexp, out string) (int, int, error) {
	m := re.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, fmt.Errorf("no resolution in tool output")
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("implausible resolution %sx%s", m[1], m[2])
	}
	return w, h, nil
}

// randomGeometry derives a window geometry from the screen size: scaled
// by a random factor in [0.8, 1.0] and positioned uniformly within the
// remaining margin. Identical default window geometry across sessions is
// an easy fingerprinting signal.
func randomGeometry(rnd *rand.Rand, screenW, screenH int) Geometry {
	scale := 0.8 + 0.2*rnd.Float64()
	w := int(float64(screenW) * scale)
	h := int(float64(screenH) * scale)
	g := Geometry{Width: w, Height: h}
	if screenW > w {
		g.X = rnd.Intn(screenW - w)
	}
	if screenH > h {
		g.Y = rnd.Intn(screenH - h)
	}
	return g
}
