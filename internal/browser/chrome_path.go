// internal/browser/chrome_path.go
package browser

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
)

// ResolveChromePath returns the configured binary when it exists, otherwise
// the first installed Chrome or Chromium found. An empty result lets the
// driver fall back to its own lookup.
func ResolveChromePath(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}

	var candidates []string
	switch runtime.GOOS {
	case "linux":
		candidates = []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
			"/opt/google/chrome/google-chrome",
		}
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		candidates = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium-browser", "chromium"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	// rod knows a few more install locations, including its own download cache.
	if path, found := launcher.LookPath(); found {
		return path
	}
	return ""
}
