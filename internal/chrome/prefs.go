package chrome

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/embedview/embedview/internal/engine"
)

// Prefs is the subset of prefs.json the Chrome engine honours. The file is
// JSON, which yaml.v3 reads as a flow mapping.
type Prefs struct {
	JSEnabled         *bool   `yaml:"js.enabled"`
	UserAgent         string  `yaml:"user-agent"`
	DeviceScaleFactor float64 `yaml:"viewport.device_scale_factor"`
	Homepage          string  `yaml:"shell.homepage"`
}

// ParsePrefs decodes a preferences file. Unknown keys are ignored.
func ParsePrefs(b []byte) (Prefs, error) {
	var p Prefs
	if len(strings.TrimSpace(string(b))) == 0 {
		return p, nil
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Prefs{}, fmt.Errorf("chrome: parse prefs: %w", err)
	}
	if p.DeviceScaleFactor < 0 {
		return Prefs{}, fmt.Errorf("chrome: parse prefs: negative device scale factor %v", p.DeviceScaleFactor)
	}
	return p, nil
}

// ScriptsEnabled reports whether page scripts should run. Absent means yes.
func (p Prefs) ScriptsEnabled() bool {
	return p.JSEnabled == nil || *p.JSEnabled
}

// loadPrefs reads prefs.json through files. A missing or broken file yields
// zero Prefs.
func loadPrefs(files engine.FileReader) (Prefs, error) {
	b, ok := engine.ReadResource(files, engine.ResourcePreferences)
	if !ok {
		return Prefs{}, nil
	}
	return ParsePrefs(b)
}

// styleScript returns a script that appends css to every document once it
// has a head.
func styleScript(css string) string {
	quoted, _ := json.Marshal(css)
	return fmt.Sprintf(`document.addEventListener('DOMContentLoaded', () => {
	const s = document.createElement('style');
	s.textContent = %s;
	(document.head || document.documentElement).appendChild(s);
});`, quoted)
}

// errorPage renders the packaged error page for a failed navigation.
// Certificate failures get badcert.html, everything else neterror.html.
func errorPage(files engine.FileReader, reason string) (string, bool) {
	r := engine.ResourceNetErrorHTML
	if strings.Contains(reason, "ERR_CERT") {
		r = engine.ResourceBadCertHTML
	}
	b, ok := engine.ReadResource(files, r)
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(string(b), "${reason}", html.EscapeString(reason)), true
}
