package sqlite

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

// Dataset kinds, derived from the registry's resource naming scheme.
const (
	kindPref   = "pref"
	kindCity   = "city"
	kindTown   = "town"
	kindBlk    = "rsdt_blk"
	kindDsp    = "rsdt_dsp"
	kindParcel = "parcel"
)

// KindForResource maps a catalog resource name to the dataset kind it loads
// into, or "" when the resource is not one the geocoder uses.
func KindForResource(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "rsdtdsp_blk"):
		return kindBlk
	case strings.Contains(name, "rsdtdsp_rsdt"):
		return kindDsp
	case strings.Contains(name, "parcel"):
		return kindParcel
	case strings.Contains(name, "town"):
		return kindTown
	case strings.Contains(name, "city"):
		return kindCity
	case strings.Contains(name, "pref"):
		return kindPref
	}
	return ""
}

// LoadResource ingests one downloaded dataset file into the table its kind
// maps to. Gzip-compressed files are detected by magic bytes. The whole file
// loads in a single transaction; a failed load leaves the table untouched.
func (s *Store) LoadResource(ctx context.Context, kind, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r, err := maybeGunzip(f)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	n, err := s.loadCSV(ctx, tx, kind, r)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit load: %w", err)
	}
	s.logger.Info("dataset loaded", "kind", kind, "rows", n, "path", path)
	return n, nil
}

// RecordDataset remembers which catalog resource was loaded and when, so a
// later run can skip unchanged resources.
func (s *Store) RecordDataset(ctx context.Context, resourceID, url, lastModified string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dataset (resource_id, url, last_modified, loaded_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(resource_id) DO UPDATE SET url = excluded.url,
			last_modified = excluded.last_modified, loaded_at = excluded.loaded_at`,
		resourceID, url, lastModified, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record dataset: %w", err)
	}
	return nil
}

// DatasetLastModified returns the stored last-modified stamp of a resource,
// or "" when it was never loaded.
func (s *Store) DatasetLastModified(ctx context.Context, resourceID string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_modified FROM dataset WHERE resource_id = ?`, resourceID).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query dataset: %w", err)
	}
	return v, nil
}

func maybeGunzip(f *os.File) (io.Reader, error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("sniff dataset: %w", err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		return zr, nil
	}
	return br, nil
}

// row gives name-based access to one CSV record via the header.
type row struct {
	index  map[string]int
	fields []string
}

func (r row) get(name string) string {
	i, ok := r.index[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

func (s *Store) loadCSV(ctx context.Context, tx *sql.Tx, kind string, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		// The registry publishes UTF-8 with BOM.
		index[strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")] = i
	}

	insert, err := prepareInsert(ctx, tx, kind)
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	n := 0
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read row %d: %w", n+1, err)
		}
		if err := insertRow(ctx, insert, kind, row{index: index, fields: fields}); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", n+1, err)
		}
		n++
	}
	return n, nil
}

func prepareInsert(ctx context.Context, tx *sql.Tx, kind string) (*sql.Stmt, error) {
	var q string
	switch kind {
	case kindPref:
		q = `INSERT OR REPLACE INTO pref (pref_key, lg_code, pref, rep_lat, rep_lon)
		     VALUES (?, ?, ?, ?, ?)`
	case kindCity:
		q = `INSERT OR REPLACE INTO city (city_key, pref_key, lg_code, pref, county, city, ward, rep_lat, rep_lon)
		     VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	case kindTown:
		q = `INSERT OR REPLACE INTO town (town_key, city_key, pref_key, lg_code, rsdt_addr_flg, rep_lat, rep_lon,
		       pref, county, city, ward, oaza_cho, machiaza_id, chome, koaza, match_key)
		     VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	case kindBlk:
		q = `INSERT OR REPLACE INTO rsdt_blk (rsdt_blk_key, town_key, city_key, lg_code, machiaza_id, blk_num, blk_id, rep_lat, rep_lon)
		     VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	case kindDsp:
		q = `INSERT OR REPLACE INTO rsdt_dsp (rsdt_dsp_key, rsdt_blk_key, rsdt_num, rsdt_id, rsdt_num2, rsdt2_id, rep_lat, rep_lon)
		     VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	case kindParcel:
		q = `INSERT OR REPLACE INTO parcel (parcel_key, town_key, lg_code, machiaza_id, prc_num1, prc_num2, prc_num3, prc_id, rep_lat, rep_lon)
		     VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	default:
		return nil, fmt.Errorf("unknown dataset kind %q", kind)
	}
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("prepare %s insert: %w", kind, err)
	}
	return stmt, nil
}

func insertRow(ctx context.Context, stmt *sql.Stmt, kind string, r row) error {
	lg := r.get("lg_code")
	lat := coordArg(r.get("rep_lat"))
	lon := coordArg(r.get("rep_lon"))

	var err error
	switch kind {
	case kindPref:
		key := domain.DeriveKey(lg, "", "", "", "", "")
		_, err = stmt.ExecContext(ctx, key, lg, r.get("pref"), lat, lon)
	case kindCity:
		key := domain.DeriveKey(lg, "", "", "", "", "")
		prefKey := domain.DeriveKey(prefLgCode(lg), "", "", "", "", "")
		_, err = stmt.ExecContext(ctx, key, prefKey, lg,
			r.get("pref"), r.get("county"), r.get("city"), r.get("ward"), lat, lon)
	case kindTown:
		machiaza := r.get("machiaza_id")
		flg := r.get("rsdt_addr_flg")
		key := domain.DeriveKey(lg, machiaza, "", "", "", flg)
		cityKey := domain.DeriveKey(lg, "", "", "", "", "")
		prefKey := domain.DeriveKey(prefLgCode(lg), "", "", "", "", "")
		_, err = stmt.ExecContext(ctx, key, cityKey, prefKey, lg, flg, lat, lon,
			r.get("pref"), r.get("county"), r.get("city"), r.get("ward"),
			r.get("oaza_cho"), machiaza, r.get("chome"), r.get("koaza"),
			townMatchKey(r.get("oaza_cho"), r.get("chome"), r.get("koaza")))
	case kindBlk:
		machiaza := r.get("machiaza_id")
		blkID := r.get("blk_id")
		key := domain.DeriveKey(lg, machiaza, blkID, "", "", "")
		townKey := domain.DeriveKey(lg, machiaza, "", "", "", "1")
		cityKey := domain.DeriveKey(lg, "", "", "", "", "")
		_, err = stmt.ExecContext(ctx, key, townKey, cityKey, lg, machiaza,
			r.get("blk_num"), blkID, lat, lon)
	case kindDsp:
		machiaza := r.get("machiaza_id")
		blkID := r.get("blk_id")
		rsdtID := r.get("rsdt_id")
		rsdt2ID := r.get("rsdt2_id")
		key := domain.DeriveKey(lg, machiaza, blkID, rsdtID, rsdt2ID, "")
		blkKey := domain.DeriveKey(lg, machiaza, blkID, "", "", "")
		_, err = stmt.ExecContext(ctx, key, blkKey,
			r.get("rsdt_num"), rsdtID, r.get("rsdt_num2"), rsdt2ID, lat, lon)
	case kindParcel:
		machiaza := r.get("machiaza_id")
		prcID := r.get("prc_id")
		key := domain.DeriveKey(lg, machiaza, prcID, "", "", "")
		townKey := domain.DeriveKey(lg, machiaza, "", "", "", "0")
		_, err = stmt.ExecContext(ctx, key, townKey, lg, machiaza,
			r.get("prc_num1"), r.get("prc_num2"), r.get("prc_num3"), prcID, lat, lon)
	default:
		return fmt.Errorf("unknown dataset kind %q", kind)
	}
	return err
}

// prefLgCode maps any local government code onto its prefecture's code: the
// two-digit prefecture prefix with the city part zeroed.
func prefLgCode(lg string) string {
	if len(lg) < 2 {
		return lg
	}
	return lg[:2] + "0000"
}

func coordArg(s string) any {
	if v := parseCoord(s); v != nil {
		return *v
	}
	return nil
}
