package engine

// Resource is a file the engine needs from the host's asset store.
type Resource int

const (
	ResourcePreferences Resource = iota
	ResourceBluetoothBlocklist
	ResourceDomainList
	ResourceHSTSPreloadList
	ResourceSSLCertificates
	ResourceBadCertHTML
	ResourceNetErrorHTML
	ResourceUserAgentCSS
	ResourceEngineCSS
	ResourcePresentationalHintsCSS
	ResourceQuirksModeCSS
	ResourceRippyPNG
)

var resourceFiles = map[Resource]string{
	ResourcePreferences:            "prefs.json",
	ResourceBluetoothBlocklist:     "gatt_blocklist.txt",
	ResourceDomainList:             "public_domains.txt",
	ResourceHSTSPreloadList:        "hsts_preload.json",
	ResourceSSLCertificates:        "certs",
	ResourceBadCertHTML:            "badcert.html",
	ResourceNetErrorHTML:           "neterror.html",
	ResourceUserAgentCSS:           "user-agent.css",
	ResourceEngineCSS:              "servo.css",
	ResourcePresentationalHintsCSS: "presentational-hints.css",
	ResourceQuirksModeCSS:          "quirks-mode.css",
	ResourceRippyPNG:               "rippy.png",
}

// FileName is the asset-store name of r.
func (r Resource) FileName() string {
	return resourceFiles[r]
}

// ReadResource fetches r through files. A nil reader behaves like an empty
// store.
func ReadResource(files FileReader, r Resource) ([]byte, bool) {
	name := r.FileName()
	if files == nil || name == "" {
		return nil, false
	}
	return files.ReadFile(name)
}
