// Package domain defines the core types and interfaces for Saqr.
package domain

import (
	"time"
)

// ScanEvent is a single Shadow ID scan to be assessed.
// Every field is optional at the boundary: missing or malformed values
// resolve to documented defaults downstream, never to a request error.
type ScanEvent struct {
	User      UserInfo     `json:"user"`
	ShadowID  ShadowIDInfo `json:"shadowId"`
	Scan      ScanInfo     `json:"scan"`
	Anomalies AnomalyFlags `json:"anomalies"`
}

// UserInfo identifies the user the token was issued to.
type UserInfo struct {
	NationalID  string `json:"nationalId"`
	PersonType  string `json:"personType"` // "Citizen" or "Resident"
	Nationality string `json:"nationality"`
}

// ShadowIDInfo describes the ephemeral token being scanned.
// Timestamps stay strings here; parsing (and its fail-open defaulting)
// belongs to the temporal analyzer.
type ShadowIDInfo struct {
	CreatedAt          string `json:"createdAt"`
	ExpiresAt          string `json:"expiresAt"`
	DeviceFingerprint  string `json:"deviceFingerprint"`
	GenerationLocation string `json:"generationLocation"`
	Used               bool   `json:"used,omitempty"`
}

// ScanInfo describes the scan itself.
type ScanInfo struct {
	Location          string `json:"location"` // "lat,lon" or free text
	Timestamp         string `json:"timestamp"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

// AnomalyFlags are the previously detected anomaly signals for this scan.
// Missing flags default to false.
type AnomalyFlags struct {
	DeviceHopping      bool `json:"deviceHopping"`
	ImpossibleTravel   bool `json:"impossibleTravel"`
	FrequentGeneration bool `json:"frequentGeneration"`
	TokenReuse         bool `json:"tokenReuse"`
}

// Or merges two flag sets; used when server-side detection fills in
// flags the caller did not supply.
func (a AnomalyFlags) Or(b AnomalyFlags) AnomalyFlags {
	return AnomalyFlags{
		DeviceHopping:      a.DeviceHopping || b.DeviceHopping,
		ImpossibleTravel:   a.ImpossibleTravel || b.ImpossibleTravel,
		FrequentGeneration: a.FrequentGeneration || b.FrequentGeneration,
		TokenReuse:         a.TokenReuse || b.TokenReuse,
	}
}

// ScanRecord is the persisted form of a scan event.
type ScanRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	NationalID  string    `json:"nationalId"`
	Event       ScanEvent `json:"event"`
	GeneratedAt time.Time `json:"generatedAt"` // token createdAt, if parseable
	ScannedAt   time.Time `json:"scannedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
