package statestore

import (
	"fmt"
	"os"
	"strings"
	"time"

	rterrors "github.com/stratastor/smartmond/internal/errors"
)

// AttrRow is one tick's worth of telemetry for a device, rendered as a
// timestamp followed by tab-separated "key;value" pairs, per §4.3's
// "append-only CSV-like" attribute log.
type AttrRow struct {
	At     time.Time
	Fields []AttrField
}

type AttrField struct {
	Key   string
	Value string
}

// AtaAttrRow builds the ATA row shape: one `<id>;<val>;<raw>` triple per
// tracked attribute.
func AtaAttrRow(at time.Time, attrs []AtaAttributeSnapshot) AttrRow {
	row := AttrRow{At: at}
	for _, a := range attrs {
		row.Fields = append(row.Fields,
			AttrField{Key: fmt.Sprintf("%d", a.ID), Value: fmt.Sprintf("%d;%d", a.Value, a.Raw)})
	}
	return row
}

// ScsiAttrRow builds the SCSI row shape from the page-derived counters;
// fields is ordered by the caller (read/write/verify error-counter pages
// plus the optional non-medium-errors and temperature entries).
func ScsiAttrRow(at time.Time, fields map[string]uint64, order []string) AttrRow {
	row := AttrRow{At: at}
	for _, k := range order {
		v, ok := fields[k]
		if !ok {
			continue
		}
		row.Fields = append(row.Fields, AttrField{Key: k, Value: fmt.Sprintf("%d", v)})
	}
	return row
}

// NvmeAttrRow builds the fixed NVMe health-page row.
func NvmeAttrRow(at time.Time, availableSpare, percentageUsed uint8, mediaErrors, errLogEntries uint64, temperature int) AttrRow {
	return AttrRow{
		At: at,
		Fields: []AttrField{
			{Key: "available-spare", Value: fmt.Sprintf("%d", availableSpare)},
			{Key: "percentage-used", Value: fmt.Sprintf("%d", percentageUsed)},
			{Key: "media-errors", Value: fmt.Sprintf("%d", mediaErrors)},
			{Key: "err-log-entries", Value: fmt.Sprintf("%d", errLogEntries)},
			{Key: "temperature", Value: fmt.Sprintf("%d", temperature)},
		},
	}
}

func (r AttrRow) render() string {
	var b strings.Builder
	b.WriteString(r.At.Local().Format("2006-01-02 15:04:05"))
	for _, f := range r.Fields {
		b.WriteByte('\t')
		b.WriteString(f.Key)
		b.WriteByte(';')
		b.WriteString(f.Value)
	}
	b.WriteByte('\n')
	return b.String()
}

// AppendAttrRow opens path in append mode, creating it if necessary, and
// writes a single row. It never truncates or reorders existing content;
// a failure here is reported to the caller and must not abort the
// device's tick (§4.3 failure semantics).
func AppendAttrRow(path string, row AttrRow) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return rterrors.Wrap(err, rterrors.StateSaveFailed).WithMetadata("path", path)
	}
	defer f.Close()

	if _, err := f.WriteString(row.render()); err != nil {
		return rterrors.Wrap(err, rterrors.StateSaveFailed).WithMetadata("path", path)
	}
	return nil
}
