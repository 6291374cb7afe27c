package format

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

// cell is one rendered CSV value. Numeric cells are written bare; string
// cells are always quoted so downstream consumers need no sniffing.
type cell struct {
	value   string
	numeric bool
}

type columnFn func(q domain.Query) cell

func str(v string) cell  { return cell{value: v} }
func num(v string) cell  { return cell{value: v, numeric: true} }
func coord(v *float64) cell {
	if v == nil {
		return cell{numeric: true}
	}
	return num(strconv.FormatFloat(*v, 'f', -1, 64))
}

// csvColumns maps column names to their value extractors. machiaza joins the
// resolved town parts back into one display string.
var csvColumns = map[string]columnFn{
	"input":       func(q domain.Query) cell { return str(q.Input) },
	"match_level": func(q domain.Query) cell { return str(q.MatchLevel.String()) },
	"matched_cnt": func(q domain.Query) cell { return num(strconv.Itoa(q.MatchedCnt)) },
	"lg_code":     func(q domain.Query) cell { return str(q.LgCode) },
	"pref":        func(q domain.Query) cell { return str(q.Pref) },
	"county":      func(q domain.Query) cell { return str(q.County) },
	"city":        func(q domain.Query) cell { return str(q.City) },
	"ward":        func(q domain.Query) cell { return str(q.Ward) },
	"machiaza":    func(q domain.Query) cell { return str(q.OazaCho + q.Chome + q.Koaza) },
	"machiaza_id": func(q domain.Query) cell { return str(q.MachiazaID) },
	"blk_num":     func(q domain.Query) cell { return str(q.Block) },
	"blk_id":      func(q domain.Query) cell { return str(q.BlockID) },
	"rsdt_num":    func(q domain.Query) cell { return str(q.RsdtNum) },
	"rsdt_id":     func(q domain.Query) cell { return str(q.RsdtID) },
	"rsdt_num2":   func(q domain.Query) cell { return str(q.RsdtNum2) },
	"rsdt2_id":    func(q domain.Query) cell { return str(q.Rsdt2ID) },
	"prc_num1":    func(q domain.Query) cell { return str(q.PrcNum1) },
	"prc_num2":    func(q domain.Query) cell { return str(q.PrcNum2) },
	"prc_num3":    func(q domain.Query) cell { return str(q.PrcNum3) },
	"prc_id":      func(q domain.Query) cell { return str(q.PrcID) },
	"other":       func(q domain.Query) cell { return str(q.Other()) },
	"lat":         func(q domain.Query) cell { return coord(q.Lat) },
	"lon":         func(q domain.Query) cell { return coord(q.Lon) },
}

// defaultColumns is the column order when none is configured.
var defaultColumns = []string{
	"input", "match_level", "lg_code", "pref", "county", "city", "ward",
	"machiaza", "machiaza_id", "blk_num", "blk_id",
	"rsdt_num", "rsdt_id", "rsdt_num2", "rsdt2_id",
	"prc_num1", "prc_num2", "prc_num3", "prc_id",
	"other", "lat", "lon",
}

type csvWriter struct {
	w       *bufio.Writer
	columns []string
	fns     []columnFn
	header  bool
}

func newCSVWriter(w io.Writer, opts Options) (*csvWriter, error) {
	columns := opts.Columns
	if len(columns) == 0 {
		columns = defaultColumns
	}
	fns := make([]columnFn, len(columns))
	for i, name := range columns {
		fn, ok := csvColumns[name]
		if !ok {
			return nil, fmt.Errorf("unknown output column %q", name)
		}
		fns[i] = fn
	}
	return &csvWriter{
		w:       bufio.NewWriter(w),
		columns: columns,
		fns:     fns,
		header:  !opts.NoHeader,
	}, nil
}

func (c *csvWriter) Write(q domain.Query) error {
	if c.header {
		c.header = false
		if _, err := c.w.WriteString(strings.Join(c.columns, ",") + "\n"); err != nil {
			return err
		}
	}
	for i, fn := range c.fns {
		if i > 0 {
			if err := c.w.WriteByte(','); err != nil {
				return err
			}
		}
		cl := fn(q)
		var err error
		if cl.numeric {
			_, err = c.w.WriteString(cl.value)
		} else {
			_, err = c.w.WriteString(quoteCSV(cl.value))
		}
		if err != nil {
			return err
		}
	}
	return c.w.WriteByte('\n')
}

func (c *csvWriter) Close() error {
	return c.w.Flush()
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
