// Package features turns a scan event into the numeric vector consumed
// by the model cascade.
package features

import (
	"github.com/shadowid-platform/saqr/internal/domain"
	"github.com/shadowid-platform/saqr/internal/geo"
	"github.com/shadowid-platform/saqr/internal/temporal"
)

// Name identifies one feature in the engineered vector. The set is
// closed: anything outside this enumeration is never emitted, and the
// model's manifest selects and orders a subset of it at load time.
type Name string

const (
	PersonTypeCode       Name = "PersonTypeCode"
	Latitude             Name = "Latitude"
	Longitude            Name = "Longitude"
	TokenDurationMinutes Name = "TokenDurationMinutes"
	UsedWithinValidity   Name = "UsedWithinValidity"
	TimeFromStartMin     Name = "TimeFromStartMin"
	IsExpiredAtUse       Name = "IsExpiredAtUse"
	TokenStartHour       Name = "TokenStartHour"
	UsageHour            Name = "UsageHour"
	UsageWeekday         Name = "UsageWeekday"

	PersonTypeResident Name = "PersonType_Resident"

	NationalityEgyptian  Name = "Nationality_Egyptian"
	NationalityFilipino  Name = "Nationality_Filipino"
	NationalityIndian    Name = "Nationality_Indian"
	NationalityPakistani Name = "Nationality_Pakistani"
	NationalitySaudi     Name = "Nationality_Saudi"
	NationalitySudanese  Name = "Nationality_Sudanese"
	NationalitySyrian    Name = "Nationality_Syrian"
	NationalityYemeni    Name = "Nationality_Yemeni"

	LocationAlBaha  Name = "Location_Al Baha"
	LocationDammam  Name = "Location_Dammam"
	LocationHail    Name = "Location_Hail"
	LocationJazan   Name = "Location_Jazan"
	LocationJeddah  Name = "Location_Jeddah"
	LocationMadinah Name = "Location_Madinah"
	LocationMakkah  Name = "Location_Makkah"
	LocationRiyadh  Name = "Location_Riyadh"
	LocationTabuk   Name = "Location_Tabuk"

	FraudTypeFrequentGeneration Name = "FraudType_FrequentGeneration"
	FraudTypeImpossibleTravel   Name = "FraudType_ImpossibleTravel"

	StateExpired    Name = "State_Expired"
	StateSuspicious Name = "State_Suspicious"
)

// tokenValidityMinutes is the fixed Shadow ID token lifetime.
const tokenValidityMinutes = 3

var nationalityFeatures = map[string]Name{
	"Saudi":     NationalitySaudi,
	"Egyptian":  NationalityEgyptian,
	"Filipino":  NationalityFilipino,
	"Indian":    NationalityIndian,
	"Pakistani": NationalityPakistani,
	"Sudanese":  NationalitySudanese,
	"Syrian":    NationalitySyrian,
	"Yemeni":    NationalityYemeni,
}

var locationFeatures = map[string]Name{
	"Riyadh":  LocationRiyadh,
	"Jeddah":  LocationJeddah,
	"Dammam":  LocationDammam,
	"Makkah":  LocationMakkah,
	"Madinah": LocationMadinah,
	"Jazan":   LocationJazan,
	"Hail":    LocationHail,
	"Tabuk":   LocationTabuk,
	"Al Baha": LocationAlBaha,
}

var nationalityNames = []Name{
	NationalityEgyptian, NationalityFilipino, NationalityIndian,
	NationalityPakistani, NationalitySaudi, NationalitySudanese,
	NationalitySyrian, NationalityYemeni,
}

var locationNames = []Name{
	LocationAlBaha, LocationDammam, LocationHail, LocationJazan,
	LocationJeddah, LocationMadinah, LocationMakkah, LocationRiyadh,
	LocationTabuk,
}

// Builder engineers feature maps from scan events.
type Builder struct {
	temporal *temporal.Analyzer
}

// NewBuilder creates a builder using the given temporal analyzer. A nil
// analyzer gets a real-clock default.
func NewBuilder(analyzer *temporal.Analyzer) *Builder {
	if analyzer == nil {
		analyzer = temporal.NewAnalyzer(nil)
	}
	return &Builder{temporal: analyzer}
}

// BuildMap engineers the named feature map for a scan event. The map
// always holds the full closed feature set. Never fails: location and
// temporal resolution are fail-open.
func (b *Builder) BuildMap(ev *domain.ScanEvent) map[Name]float64 {
	m := make(map[Name]float64, 32)

	// 1 = Citizen (literal match only), 2 = everything else.
	personTypeCode := 2.0
	if ev.User.PersonType == "Citizen" {
		personTypeCode = 1.0
	}

	lat, lon, city := geo.Resolve(ev.Scan.Location)
	ta := b.temporal.Analyze(ev.ShadowID.CreatedAt, ev.ShadowID.ExpiresAt, ev.Scan.Timestamp)

	m[PersonTypeCode] = personTypeCode
	m[Latitude] = lat
	m[Longitude] = lon
	m[TokenDurationMinutes] = tokenValidityMinutes
	m[UsedWithinValidity] = float64(ta.UsedWithinValidity)
	m[TimeFromStartMin] = ta.TimeFromStartMin
	m[IsExpiredAtUse] = float64(ta.IsExpiredAtUse)
	m[TokenStartHour] = float64(ta.TokenStartHour)
	m[UsageHour] = float64(ta.UsageHour)
	m[UsageWeekday] = float64(ta.UsageWeekday)

	m[PersonTypeResident] = 0
	if personTypeCode == 2.0 {
		m[PersonTypeResident] = 1
	}

	// Unknown nationalities encode as all-zero: the model saw only
	// these eight during training.
	natFeature := nationalityFeatures[ev.User.Nationality]
	for _, n := range nationalityNames {
		m[n] = 0
		if n == natFeature && natFeature != "" {
			m[n] = 1
		}
	}

	// Cities without a training column (Taif, Abha) collapse onto
	// Riyadh so exactly one location bit is always set.
	locFeature, ok := locationFeatures[city]
	if !ok {
		locFeature = LocationRiyadh
	}
	for _, n := range locationNames {
		m[n] = 0
		if n == locFeature {
			m[n] = 1
		}
	}

	m[FraudTypeFrequentGeneration] = boolFeature(ev.Anomalies.FrequentGeneration)
	m[FraudTypeImpossibleTravel] = boolFeature(ev.Anomalies.ImpossibleTravel)

	m[StateExpired] = float64(ta.IsExpiredAtUse)
	m[StateSuspicious] = boolFeature(ev.Anomalies.DeviceHopping ||
		ev.Anomalies.ImpossibleTravel || ev.Anomalies.TokenReuse)

	return m
}

// Project orders the named map into a dense vector following the
// model's manifest. Names the manifest asks for but the map lacks fill
// with 0; map entries absent from the manifest are dropped.
func Project(m map[Name]float64, manifest []string) []float64 {
	vec := make([]float64, len(manifest))
	for i, name := range manifest {
		vec[i] = m[Name(name)]
	}
	return vec
}

// Build is the full event-to-vector path: engineer the map, then
// project it onto the manifest.
func (b *Builder) Build(ev *domain.ScanEvent, manifest []string) []float64 {
	return Project(b.BuildMap(ev), manifest)
}

func boolFeature(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
