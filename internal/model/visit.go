package model

import "time"

// DeviceInfo is what we could tell about the visitor's device from its
// User-Agent. Stored as a JSON blob next to the visit.
type DeviceInfo struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	Platform       string `json:"platform,omitempty"`
	Mobile         bool   `json:"mobile"`
	Bot            bool   `json:"bot"`
}

// ProfileVisit is one append-only record of someone opening a profile.
type ProfileVisit struct {
	ID        int64      `json:"id"`
	ProfileID int64      `json:"profileId"`
	IPAddress string     `json:"ipAddress"`
	UserAgent string     `json:"userAgent"`
	Referer   string     `json:"referer"`
	Country   string     `json:"country"`
	City      string     `json:"city"`
	Device    DeviceInfo `json:"deviceInfo"`
	VisitedAt time.Time  `json:"visitedAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Visitor is the request-side description of whoever resolved a code.
type Visitor struct {
	IP        string
	UserAgent string
	Referer   string
	Country   string
	City      string
	Device    DeviceInfo
}

// VisitStats are the read-side counters shown next to a profile.
type VisitStats struct {
	Total          int `json:"total"`
	Last7Days      int `json:"last7Days"`
	Last30Days     int `json:"last30Days"`
	UniqueVisitors int `json:"uniqueVisitors"`
}
