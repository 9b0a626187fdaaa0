// Package visitor turns an incoming request into the visitor details stored
// with a profile visit.
package visitor

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"github.com/sakif/tapcard/internal/model"
)

// Geo headers set by the CDN in front of us. Whichever is present wins.
var (
	countryHeaders = []string{"CF-IPCountry", "CloudFront-Viewer-Country", "X-Country-Code"}
	cityHeaders    = []string{"CloudFront-Viewer-City", "X-City"}
)

const maxUserAgent = 512

// FromRequest reads the visitor from r. The IP comes from RemoteAddr, which
// chi's RealIP middleware has already rewritten from X-Forwarded-For.
func FromRequest(r *http.Request) model.Visitor {
	ua := r.UserAgent()
	if len(ua) > maxUserAgent {
		ua = ua[:maxUserAgent]
	}
	return model.Visitor{
		IP:        clientIP(r.RemoteAddr),
		UserAgent: ua,
		Referer:   r.Referer(),
		Country:   firstHeader(r, countryHeaders),
		City:      firstHeader(r, cityHeaders),
		Device:    ParseDevice(ua),
	}
}

// ParseDevice extracts browser, OS and device class from a User-Agent.
func ParseDevice(ua string) model.DeviceInfo {
	if ua == "" {
		return model.DeviceInfo{}
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	return model.DeviceInfo{
		Browser:        name,
		BrowserVersion: version,
		OS:             parsed.OS(),
		Platform:       parsed.Platform(),
		Mobile:         parsed.Mobile(),
		Bot:            parsed.Bot(),
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// RealIP stores a bare address without a port
		return remoteAddr
	}
	return host
}

func firstHeader(r *http.Request, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" && v != "XX" {
			return v
		}
	}
	return ""
}
