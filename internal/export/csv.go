// Package export renders snapshots as CSV.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"gridwatch/internal/model"
)

// GridHeader is the column layout of WriteGridCSV.
func GridHeader() []string {
	header := make([]string, 0, 1+model.IntervalsPerHour+3)
	header = append(header, "HE")
	for i := 0; i < model.IntervalsPerHour; i++ {
		header = append(header, strconv.Itoa(i*model.IntervalMinutes))
	}
	return append(header, "RT", "DA", "DA/RT")
}

// WriteGridCSV writes g with one row per hour-ending. Unknown values are empty cells.
func WriteGridCSV(w io.Writer, g model.GridSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(GridHeader()); err != nil {
		return err
	}
	for _, r := range g.Rows {
		row := make([]string, 0, 1+model.IntervalsPerHour+3)
		row = append(row, strconv.Itoa(r.HE))
		for _, v := range r.Minutes {
			row = append(row, v.String())
		}
		row = append(row, r.RT.String(), r.DA.String(), r.Spread.String())
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGridCSVFile writes g to path.
func WriteGridCSVFile(path string, g model.GridSnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteGridCSV(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
