package useragent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ua-parser/uap-go/uaparser"
)

// Device type classification
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceOther   = "other"
)

// Info holds the facets extracted from a User-Agent string
type Info struct {
	DeviceFamily string
	DeviceBrand  string
	DeviceModel  string

	OS        string
	OSVersion string

	Browser        string
	BrowserVersion string

	DeviceType string
}

// Facets is the rendered form written to the access log
type Facets struct {
	Device  string
	OS      string
	Browser string
}

var (
	parserOnce sync.Once
	parser     *uaparser.Parser
)

// regexes are compiled once; the corpus is large
func sharedParser() *uaparser.Parser {
	parserOnce.Do(func() {
		parser = uaparser.NewFromSaved()
	})
	return parser
}

// Parse extracts device, OS and browser facets. It never fails: unknown or
// empty input yields empty fields.
func Parse(ua string) (info Info) {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return Info{DeviceType: DeviceOther}
	}

	// uap-go regexes are third-party data; a bad match must not take the request down
	defer func() {
		if r := recover(); r != nil {
			info = Info{DeviceType: DeviceOther}
		}
	}()

	client := sharedParser().Parse(ua)
	if client == nil {
		return Info{DeviceType: DeviceOther}
	}

	if client.Device != nil {
		info.DeviceFamily = client.Device.Family
		info.DeviceBrand = client.Device.Brand
		info.DeviceModel = client.Device.Model
	}
	if client.Os != nil {
		info.OS = client.Os.Family
		info.OSVersion = client.Os.ToVersionString()
	}
	if client.UserAgent != nil {
		info.Browser = client.UserAgent.Family
		info.BrowserVersion = client.UserAgent.ToVersionString()
	}
	info.DeviceType = classify(ua, info)

	return info
}

// Facets renders the fixed templates: "<family> (<brand> <model>)",
// "<os> <version>" and "<browser> <version>".
func (i Info) Facets() Facets {
	return Facets{
		Device:  fmt.Sprintf("%s (%s %s)", i.DeviceFamily, i.DeviceBrand, i.DeviceModel),
		OS:      fmt.Sprintf("%s %s", i.OS, i.OSVersion),
		Browser: fmt.Sprintf("%s %s", i.Browser, i.BrowserVersion),
	}
}

// classify derives a coarse device type from the parsed facets and raw string
func classify(ua string, info Info) string {
	lower := strings.ToLower(ua)

	if info.DeviceFamily == "Spider" || strings.Contains(lower, "bot") ||
		strings.Contains(lower, "crawler") || strings.Contains(lower, "spider") {
		return DeviceBot
	}

	if strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") ||
		(strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")) {
		return DeviceTablet
	}

	if strings.Contains(lower, "mobi") || strings.Contains(lower, "iphone") ||
		info.OS == "iOS" || info.OS == "Android" {
		return DeviceMobile
	}

	switch info.OS {
	case "Windows", "Mac OS X", "Linux", "Ubuntu", "Fedora", "Chrome OS", "FreeBSD":
		return DeviceDesktop
	}

	return DeviceOther
}
