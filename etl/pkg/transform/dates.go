package transform

import (
	"time"

	"github.com/arborlabs/shopetl/etl/pkg/schema"
	"github.com/arborlabs/shopetl/etl/pkg/table"
)

// The date dimension covers this closed range, one row per calendar day.
var (
	dateDimStart = time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)
	dateDimEnd   = time.Date(2018, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// BuildDateDimension generates DIM_DATES. Pure computation over the fixed
// range: no raw-table input, no clock. Weekday is Monday=0 and week_by_year
// is the ISO week number.
func BuildDateDimension() (*table.Table, error) {
	t := table.New(schema.DimDates, []table.Column{
		{Name: "date", Type: table.Timestamp},
		{Name: "quarter", Type: table.Int64},
		{Name: "month", Type: table.Int64},
		{Name: "year", Type: table.Int64},
		{Name: "week_by_year", Type: table.Int64},
		{Name: "day", Type: table.Int64},
		{Name: "weekday", Type: table.Int64},
		{Name: "weekday_name", Type: table.String},
	})
	for d := dateDimStart; !d.After(dateDimEnd); d = d.AddDate(0, 0, 1) {
		_, isoWeek := d.ISOWeek()
		quarter := (int64(d.Month())-1)/3 + 1
		weekday := int64((int(d.Weekday()) + 6) % 7)
		err := t.AppendRow(
			d,
			quarter,
			int64(d.Month()),
			int64(d.Year()),
			int64(isoWeek),
			int64(d.Day()),
			weekday,
			d.Weekday().String(),
		)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}
