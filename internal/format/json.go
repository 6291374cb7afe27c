package format

import (
	"bufio"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// record is the JSON shape of one geocoded result. Unresolved string fields
// serialize as empty strings, missing coordinates as null.
type record struct {
	Input      string   `json:"input"`
	MatchLevel string   `json:"match_level"`
	MatchedCnt int      `json:"matched_cnt"`
	LgCode     string   `json:"lg_code"`
	Pref       string   `json:"pref"`
	County     string   `json:"county"`
	City       string   `json:"city"`
	Ward       string   `json:"ward"`
	Machiaza   string   `json:"machiaza"`
	MachiazaID string   `json:"machiaza_id"`
	BlkNum     string   `json:"blk_num"`
	BlkID      string   `json:"blk_id"`
	RsdtNum    string   `json:"rsdt_num"`
	RsdtID     string   `json:"rsdt_id"`
	RsdtNum2   string   `json:"rsdt_num2"`
	Rsdt2ID    string   `json:"rsdt2_id"`
	PrcNum1    string   `json:"prc_num1"`
	PrcNum2    string   `json:"prc_num2"`
	PrcNum3    string   `json:"prc_num3"`
	PrcID      string   `json:"prc_id"`
	Other      string   `json:"other"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
}

func toRecord(q domain.Query) record {
	return record{
		Input:      q.Input,
		MatchLevel: q.MatchLevel.String(),
		MatchedCnt: q.MatchedCnt,
		LgCode:     q.LgCode,
		Pref:       q.Pref,
		County:     q.County,
		City:       q.City,
		Ward:       q.Ward,
		Machiaza:   q.OazaCho + q.Chome + q.Koaza,
		MachiazaID: q.MachiazaID,
		BlkNum:     q.Block,
		BlkID:      q.BlockID,
		RsdtNum:    q.RsdtNum,
		RsdtID:     q.RsdtID,
		RsdtNum2:   q.RsdtNum2,
		Rsdt2ID:    q.Rsdt2ID,
		PrcNum1:    q.PrcNum1,
		PrcNum2:    q.PrcNum2,
		PrcNum3:    q.PrcNum3,
		PrcID:      q.PrcID,
		Other:      q.Other(),
		Lat:        q.Lat,
		Lon:        q.Lon,
	}
}

// jsonWriter emits either one JSON array over the whole run or one object per
// line (NDJSON).
type jsonWriter struct {
	w       *bufio.Writer
	ndjson  bool
	started bool
}

func newJSONWriter(w io.Writer, ndjson bool) *jsonWriter {
	return &jsonWriter{w: bufio.NewWriter(w), ndjson: ndjson}
}

func (j *jsonWriter) Write(q domain.Query) error {
	data, err := json.Marshal(toRecord(q))
	if err != nil {
		return err
	}

	if j.ndjson {
		if _, err := j.w.Write(data); err != nil {
			return err
		}
		return j.w.WriteByte('\n')
	}

	sep := byte('[')
	if j.started {
		sep = ','
	}
	j.started = true
	if err := j.w.WriteByte(sep); err != nil {
		return err
	}
	_, err = j.w.Write(data)
	return err
}

func (j *jsonWriter) Close() error {
	if !j.ndjson {
		if !j.started {
			if err := j.w.WriteByte('['); err != nil {
				return err
			}
		}
		if err := j.w.WriteByte(']'); err != nil {
			return err
		}
		if err := j.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return j.w.Flush()
}
