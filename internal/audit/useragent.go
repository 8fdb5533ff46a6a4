// useragent.go classifies raw User-Agent strings into a fixed set of browser
// and operating system labels for login audit records.
package audit

import "strings"

// Browser labels produced by BrowserFromUserAgent.
const (
	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserEdge    = "Edge"
	BrowserUnknown = "Unknown"
)

// Operating system labels produced by OSFromUserAgent.
const (
	OSWindows = "Windows"
	OSMacOS   = "macOS"
	OSLinux   = "Linux"
	OSAndroid = "Android"
	OSIOS     = "iOS"
	OSUnknown = "Unknown"
)

// BrowserFromUserAgent returns the browser label for a raw User-Agent string.
// Checks run in a fixed priority order because real user agents contain
// multiple product tokens: Edge UAs also contain "Chrome", and Chrome UAs also
// contain "Safari", so Edge is checked first and Safari last.
func BrowserFromUserAgent(ua string) string {
	switch {
	case strings.Contains(ua, "Edg"): // matches both "Edge/" and the modern "Edg/"
		return BrowserEdge
	case strings.Contains(ua, "Firefox"):
		return BrowserFirefox
	case strings.Contains(ua, "Chrome"):
		return BrowserChrome
	case strings.Contains(ua, "Safari"):
		return BrowserSafari
	default:
		return BrowserUnknown
	}
}

// OSFromUserAgent returns the operating system label for a raw User-Agent
// string. Android is checked before Linux because Android UAs contain "Linux",
// and iOS devices before macOS because iOS UAs contain "like Mac OS X".
func OSFromUserAgent(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return OSWindows
	case strings.Contains(ua, "Android"):
		return OSAndroid
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iPod"):
		return OSIOS
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return OSMacOS
	case strings.Contains(ua, "Linux"):
		return OSLinux
	default:
		return OSUnknown
	}
}
