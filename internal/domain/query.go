package domain

import (
	"time"
	"unicode/utf8"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
)

// MatchLevel describes how specifically an address has been resolved. Levels
// are ordered; a query's MatchLevel never decreases as it moves through the
// pipeline, and CoordinateLevel never exceeds MatchLevel.
type MatchLevel int

const (
	LevelUnknown MatchLevel = iota
	LevelPrefecture
	LevelCity
	LevelMachiaza
	LevelMachiazaDetail
	LevelResidentialBlock
	LevelResidentialDetail
	LevelParcel
)

var matchLevelNames = map[MatchLevel]string{
	LevelUnknown:           "unknown",
	LevelPrefecture:        "prefecture",
	LevelCity:              "city",
	LevelMachiaza:          "machiaza",
	LevelMachiazaDetail:    "machiaza_detail",
	LevelResidentialBlock:  "residential_block",
	LevelResidentialDetail: "residential_detail",
	LevelParcel:            "parcel",
}

func (l MatchLevel) String() string {
	if name, ok := matchLevelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Query is the unit of work traversing the pipeline. Stages treat it as
// immutable: they produce a modified copy rather than mutating in place.
type Query struct {
	// Input is the raw line as read, preserved for output.
	Input string
	// TempAddress is the residual address still to be consumed.
	TempAddress charnode.Chain

	MatchLevel      MatchLevel
	CoordinateLevel MatchLevel
	Lat             *float64
	Lon             *float64

	// Resolved keys into the reference store.
	PrefKey    string
	CityKey    string
	TownKey    string
	ParcelKey  string
	RsdtBlkKey string
	RsdtDspKey string

	// Resolved descriptive fields.
	LgCode      string
	Pref        string
	County      string
	City        string
	Ward        string
	OazaCho     string
	Chome       string
	Koaza       string
	MachiazaID  string
	Block       string
	BlockID     string
	RsdtNum     string
	RsdtID      string
	RsdtNum2    string
	Rsdt2ID     string
	RsdtAddrFlg string
	PrcNum1     string
	PrcNum2     string
	PrcNum3     string
	PrcID       string

	// MatchedCnt is the number of source characters consumed so far.
	MatchedCnt int
	// StartTime is when the record entered the pipeline.
	StartTime time.Time
}

// NewQuery wraps one input line. The residual chain is set by the ingest
// stage.
func NewQuery(input string, start time.Time) Query {
	return Query{Input: input, StartTime: start}
}

// WithTail returns a copy of q whose residual address is tail, with
// MatchedCnt recomputed from the tail's provenance: the count of source
// characters before the first input-derived character still unconsumed.
func (q Query) WithTail(tail charnode.Chain) Query {
	q.TempAddress = tail
	if next := tail.NextOrigIndex(); next >= 0 {
		q.MatchedCnt = next
	} else {
		q.MatchedCnt = utf8.RuneCountInString(q.Input)
	}
	return q
}

// SetCoordinates attaches a representative point at the given level when the
// row carries one and the query has none at that precision yet.
func (q Query) SetCoordinates(lat, lon *float64, level MatchLevel) Query {
	if lat == nil || lon == nil {
		return q
	}
	if q.CoordinateLevel >= level {
		return q
	}
	q.Lat = lat
	q.Lon = lon
	q.CoordinateLevel = level
	return q
}

// Other returns the residual address text that no stage could resolve.
func (q Query) Other() string {
	return q.TempAddress.String()
}
