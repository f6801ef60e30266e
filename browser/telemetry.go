package browser

// telemetryDomains are Chrome phone-home and third-party analytics hosts
// that serve no purpose during a scraping session. They are routed to a
// null address at the DNS layer so the browser cannot reach them even
// before any page-level blocking applies.
var telemetryDomains = []string{
	"accounts.google.com",
	"clients1.google.com",
	"clients2.google.com",
	"clients3.google.com",
	"clients4.google.com",
	"clientservices.googleapis.com",
	"update.googleapis.com",
	"safebrowsing.googleapis.com",
	"optimizationguide-pa.googleapis.com",
	"content-autofill.googleapis.com",
	"crashpad.chromium.org",
	"google-analytics.com",
	"www.google-analytics.com",
	"googletagmanager.com",
	"www.googletagmanager.com",
	"scorecardresearch.com",
	"hotjar.com",
	"mixpanel.com",
	"segment.io",
	"segment.com",
	"chartbeat.com",
	"demdex.net",
}
