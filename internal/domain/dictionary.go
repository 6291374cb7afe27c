package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveKey produces a deterministic row key from the identifying columns.
// The same inputs always hash to the same key across runs and machines.
func DeriveKey(lgCode, machiazaID, blkID, rsdtID, rsdt2ID, rsdtAddrFlg string) string {
	input := strings.Join([]string{lgCode, machiazaID, blkID, rsdtID, rsdt2ID, rsdtAddrFlg}, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:8])
}

// PrefectureInfo is one prefecture dictionary row.
type PrefectureInfo struct {
	PrefKey string
	LgCode  string
	Pref    string
	RepLat  *float64
	RepLon  *float64
}

// CityInfo is one city/ward dictionary row. Ward is empty except for
// designated cities; County is empty for cities outside counties.
type CityInfo struct {
	CityKey string
	PrefKey string
	LgCode  string
	Pref    string
	County  string
	City    string
	Ward    string
	RepLat  *float64
	RepLon  *float64
}

// TownInfo is one town/ōaza dictionary row. Key holds the normalized
// matching key (ōaza + chōme + koaza after normalization).
type TownInfo struct {
	TownKey     string
	CityKey     string
	PrefKey     string
	LgCode      string
	RsdtAddrFlg string
	RepLat      *float64
	RepLon      *float64
	Koaza       string
	Pref        string
	County      string
	City        string
	Ward        string
	OazaCho     string
	MachiazaID  string
	Chome       string
	Key         string
}

// ResidentialFlag implements trie.ResidentialFlagged so rows carrying the
// flag win ties at equal match depth.
func (t TownInfo) ResidentialFlag() string { return t.RsdtAddrFlg }

// RsdtBlkInfo is one residence-block (街区) row.
type RsdtBlkInfo struct {
	RsdtBlkKey string
	TownKey    string
	CityKey    string
	LgCode     string
	MachiazaID string
	Block      string
	BlockID    string
	RepLat     *float64
	RepLon     *float64
}

// RsdtDspInfo is one residence display-number (住居番号) row.
type RsdtDspInfo struct {
	RsdtDspKey string
	RsdtBlkKey string
	RsdtNum    string
	RsdtID     string
	RsdtNum2   string
	Rsdt2ID    string
	RepLat     *float64
	RepLon     *float64
}

// ParcelInfo is one parcel (地番) row.
type ParcelInfo struct {
	ParcelKey  string
	TownKey    string
	LgCode     string
	MachiazaID string
	PrcNum1    string
	PrcNum2    string
	PrcNum3    string
	PrcID      string
	RepLat     *float64
	RepLon     *float64
}

// ReferenceStore serves dictionary rows to the pipeline stages. The store is
// written during the download/load phase and read-only while geocoding;
// implementations must be safe for concurrent reads.
type ReferenceStore interface {
	// Prefectures returns all 47 prefecture rows.
	Prefectures(ctx context.Context) ([]PrefectureInfo, error)

	// Cities returns all city/ward rows.
	Cities(ctx context.Context) ([]CityInfo, error)

	// Towns returns the town rows of one city.
	Towns(ctx context.Context, cityKey string) ([]TownInfo, error)

	// ResidenceBlocks returns the residence-block rows of one town.
	ResidenceBlocks(ctx context.Context, townKey string) ([]RsdtBlkInfo, error)

	// ResidenceDetails returns the display-number rows of one block.
	ResidenceDetails(ctx context.Context, rsdtBlkKey string) ([]RsdtDspInfo, error)

	// Parcels returns the parcel rows of one town.
	Parcels(ctx context.Context, townKey string) ([]ParcelInfo, error)
}
