// Package export writes readings out of the local store: CSV files for
// spreadsheets and InfluxDB points for dashboards.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/barolog/barolog/internal/reading"
)

// CSVHeader is the first line of every CSV export.
const CSVHeader = "ID,Timestamp,Date,Pressure_hPa,DeviceId,DeviceName,OSVersion"

// DateLayout is how the Date column renders the reading time.
const DateLayout = "2006-01-02 15:04:05"

// WriteCSV writes readings as CSV. The Date column is always quoted and
// rendered in loc (time.Local when nil); numeric columns are never quoted;
// text columns are quoted only when they need it.
func WriteCSV(w io.Writer, readings []*reading.Reading, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(CSVHeader)
	bw.WriteByte('\n')

	for _, r := range readings {
		bw.WriteString(strconv.FormatInt(r.LocalID, 10))
		bw.WriteByte(',')
		bw.WriteString(strconv.FormatInt(r.Timestamp, 10))
		bw.WriteByte(',')
		bw.WriteString(quote(r.Time().In(loc).Format(DateLayout)))
		bw.WriteByte(',')
		bw.WriteString(strconv.FormatFloat(r.Value, 'f', -1, 64))
		bw.WriteByte(',')
		bw.WriteString(field(r.DeviceID))
		bw.WriteByte(',')
		bw.WriteString(field(r.DeviceName))
		bw.WriteByte(',')
		bw.WriteString(field(r.OSVersion))
		bw.WriteByte('\n')
	}

	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// field quotes s when it contains a separator, quote or line break.
func field(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}
