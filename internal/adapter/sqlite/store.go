// Package sqlite persists the reference dictionary in a local SQLite file and
// serves it to the pipeline stages.
//
// The database is written once by the download subcommand and opened
// read-only by the geocode subcommand; queries carry no transaction state and
// are safe for concurrent readers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
	"github.com/LunaInsidious/abr-geocoder/internal/jptext"
)

// Store implements domain.ReferenceStore over a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the reference database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS pref (
	pref_key TEXT PRIMARY KEY,
	lg_code  TEXT NOT NULL,
	pref     TEXT NOT NULL,
	rep_lat  REAL,
	rep_lon  REAL
);

CREATE TABLE IF NOT EXISTS city (
	city_key TEXT PRIMARY KEY,
	pref_key TEXT NOT NULL,
	lg_code  TEXT NOT NULL,
	pref     TEXT NOT NULL,
	county   TEXT NOT NULL DEFAULT '',
	city     TEXT NOT NULL,
	ward     TEXT NOT NULL DEFAULT '',
	rep_lat  REAL,
	rep_lon  REAL
);
CREATE INDEX IF NOT EXISTS idx_city_pref ON city(pref_key);

CREATE TABLE IF NOT EXISTS town (
	town_key      TEXT PRIMARY KEY,
	city_key      TEXT NOT NULL,
	pref_key      TEXT NOT NULL,
	lg_code       TEXT NOT NULL,
	rsdt_addr_flg TEXT NOT NULL DEFAULT '',
	rep_lat       REAL,
	rep_lon       REAL,
	pref          TEXT NOT NULL DEFAULT '',
	county        TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	ward          TEXT NOT NULL DEFAULT '',
	oaza_cho      TEXT NOT NULL DEFAULT '',
	machiaza_id   TEXT NOT NULL DEFAULT '',
	chome         TEXT NOT NULL DEFAULT '',
	koaza         TEXT NOT NULL DEFAULT '',
	match_key     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_town_city ON town(city_key);

CREATE TABLE IF NOT EXISTS rsdt_blk (
	rsdt_blk_key TEXT PRIMARY KEY,
	town_key     TEXT NOT NULL,
	city_key     TEXT NOT NULL,
	lg_code      TEXT NOT NULL,
	machiaza_id  TEXT NOT NULL DEFAULT '',
	blk_num      TEXT NOT NULL,
	blk_id       TEXT NOT NULL DEFAULT '',
	rep_lat      REAL,
	rep_lon      REAL
);
CREATE INDEX IF NOT EXISTS idx_rsdt_blk_town ON rsdt_blk(town_key);

CREATE TABLE IF NOT EXISTS rsdt_dsp (
	rsdt_dsp_key TEXT PRIMARY KEY,
	rsdt_blk_key TEXT NOT NULL,
	rsdt_num     TEXT NOT NULL,
	rsdt_id      TEXT NOT NULL DEFAULT '',
	rsdt_num2    TEXT NOT NULL DEFAULT '',
	rsdt2_id     TEXT NOT NULL DEFAULT '',
	rep_lat      REAL,
	rep_lon      REAL
);
CREATE INDEX IF NOT EXISTS idx_rsdt_dsp_blk ON rsdt_dsp(rsdt_blk_key);

CREATE TABLE IF NOT EXISTS parcel (
	parcel_key  TEXT PRIMARY KEY,
	town_key    TEXT NOT NULL,
	lg_code     TEXT NOT NULL,
	machiaza_id TEXT NOT NULL DEFAULT '',
	prc_num1    TEXT NOT NULL,
	prc_num2    TEXT NOT NULL DEFAULT '',
	prc_num3    TEXT NOT NULL DEFAULT '',
	prc_id      TEXT NOT NULL DEFAULT '',
	rep_lat     REAL,
	rep_lon     REAL
);
CREATE INDEX IF NOT EXISTS idx_parcel_town ON parcel(town_key);

CREATE TABLE IF NOT EXISTS dataset (
	resource_id   TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	last_modified TEXT NOT NULL DEFAULT '',
	loaded_at     TEXT NOT NULL
);
`

// InitSchema creates all tables and indexes.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Prefectures returns all prefecture rows.
func (s *Store) Prefectures(ctx context.Context) ([]domain.PrefectureInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pref_key, lg_code, pref, rep_lat, rep_lon FROM pref ORDER BY lg_code`)
	if err != nil {
		return nil, fmt.Errorf("query prefectures: %w", err)
	}
	defer rows.Close()

	var out []domain.PrefectureInfo
	for rows.Next() {
		var p domain.PrefectureInfo
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&p.PrefKey, &p.LgCode, &p.Pref, &lat, &lon); err != nil {
			return nil, err
		}
		p.RepLat, p.RepLon = nullCoord(lat), nullCoord(lon)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Cities returns all city/ward rows.
func (s *Store) Cities(ctx context.Context) ([]domain.CityInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city_key, pref_key, lg_code, pref, county, city, ward, rep_lat, rep_lon
		 FROM city ORDER BY lg_code`)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()

	var out []domain.CityInfo
	for rows.Next() {
		var c domain.CityInfo
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&c.CityKey, &c.PrefKey, &c.LgCode, &c.Pref, &c.County, &c.City, &c.Ward, &lat, &lon); err != nil {
			return nil, err
		}
		c.RepLat, c.RepLon = nullCoord(lat), nullCoord(lon)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Towns returns the town rows of one city.
func (s *Store) Towns(ctx context.Context, cityKey string) ([]domain.TownInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT town_key, city_key, pref_key, lg_code, rsdt_addr_flg, rep_lat, rep_lon,
		        pref, county, city, ward, oaza_cho, machiaza_id, chome, koaza, match_key
		 FROM town WHERE city_key = ? ORDER BY machiaza_id`, cityKey)
	if err != nil {
		return nil, fmt.Errorf("query towns: %w", err)
	}
	defer rows.Close()

	var out []domain.TownInfo
	for rows.Next() {
		var t domain.TownInfo
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&t.TownKey, &t.CityKey, &t.PrefKey, &t.LgCode, &t.RsdtAddrFlg, &lat, &lon,
			&t.Pref, &t.County, &t.City, &t.Ward, &t.OazaCho, &t.MachiazaID, &t.Chome, &t.Koaza, &t.Key); err != nil {
			return nil, err
		}
		t.RepLat, t.RepLon = nullCoord(lat), nullCoord(lon)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ResidenceBlocks returns the residence-block rows of one town.
func (s *Store) ResidenceBlocks(ctx context.Context, townKey string) ([]domain.RsdtBlkInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rsdt_blk_key, town_key, city_key, lg_code, machiaza_id, blk_num, blk_id, rep_lat, rep_lon
		 FROM rsdt_blk WHERE town_key = ? ORDER BY blk_id`, townKey)
	if err != nil {
		return nil, fmt.Errorf("query residence blocks: %w", err)
	}
	defer rows.Close()

	var out []domain.RsdtBlkInfo
	for rows.Next() {
		var b domain.RsdtBlkInfo
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&b.RsdtBlkKey, &b.TownKey, &b.CityKey, &b.LgCode, &b.MachiazaID, &b.Block, &b.BlockID, &lat, &lon); err != nil {
			return nil, err
		}
		b.RepLat, b.RepLon = nullCoord(lat), nullCoord(lon)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ResidenceDetails returns the display-number rows of one block.
func (s *Store) ResidenceDetails(ctx context.Context, rsdtBlkKey string) ([]domain.RsdtDspInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rsdt_dsp_key, rsdt_blk_key, rsdt_num, rsdt_id, rsdt_num2, rsdt2_id, rep_lat, rep_lon
		 FROM rsdt_dsp WHERE rsdt_blk_key = ? ORDER BY rsdt_id, rsdt2_id`, rsdtBlkKey)
	if err != nil {
		return nil, fmt.Errorf("query residence details: %w", err)
	}
	defer rows.Close()

	var out []domain.RsdtDspInfo
	for rows.Next() {
		var d domain.RsdtDspInfo
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&d.RsdtDspKey, &d.RsdtBlkKey, &d.RsdtNum, &d.RsdtID, &d.RsdtNum2, &d.Rsdt2ID, &lat, &lon); err != nil {
			return nil, err
		}
		d.RepLat, d.RepLon = nullCoord(lat), nullCoord(lon)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Parcels returns the parcel rows of one town.
func (s *Store) Parcels(ctx context.Context, townKey string) ([]domain.ParcelInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parcel_key, town_key, lg_code, machiaza_id, prc_num1, prc_num2, prc_num3, prc_id, rep_lat, rep_lon
		 FROM parcel WHERE town_key = ? ORDER BY prc_id`, townKey)
	if err != nil {
		return nil, fmt.Errorf("query parcels: %w", err)
	}
	defer rows.Close()

	var out []domain.ParcelInfo
	for rows.Next() {
		var p domain.ParcelInfo
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&p.ParcelKey, &p.TownKey, &p.LgCode, &p.MachiazaID, &p.PrcNum1, &p.PrcNum2, &p.PrcNum3, &p.PrcID, &lat, &lon); err != nil {
			return nil, err
		}
		p.RepLat, p.RepLon = nullCoord(lat), nullCoord(lon)
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullCoord(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func parseCoord(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// townMatchKey assembles the normalized matching key of a town row from its
// display parts.
func townMatchKey(oazaCho, chome, koaza string) string {
	return jptext.NormalizeString(oazaCho + chome + koaza)
}
