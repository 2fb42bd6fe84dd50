package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

// ParseError records one skipped row or column problem. Parsing is tolerant:
// a malformed row is recorded and skipped, never aborting the file.
type ParseError struct {
	File   string
	Line   int // 1-based, header is line 1
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
}

// requiredColumns lists the columns a row must carry a value for, per file.
// A row with an empty or absent required column is skipped with an error.
var requiredColumns = map[string][]string{
	"stops.txt":          {"stop_id", "stop_name", "stop_lat", "stop_lon"},
	"routes.txt":         {"route_id", "route_type"},
	"trips.txt":          {"trip_id", "route_id", "service_id"},
	"stop_times.txt":     {"trip_id", "stop_id", "departure_time", "stop_sequence"},
	"calendar.txt":       {"service_id", "start_date", "end_date"},
	"calendar_dates.txt": {"service_id", "date", "exception_type"},
}

// ParseDir parses the per-entity .txt files found in dir. Missing optional
// files (calendar, calendar_dates) are fine; a hard error is returned only
// when a required file cannot be opened at all.
func ParseDir(dir string) (*Feed, []ParseError, error) {
	open := func(name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, name))
	}
	return parseAll(open)
}

// ParseZip parses the per-entity .txt files inside a feed archive.
func ParseZip(path string) (*Feed, []ParseError, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open feed archive: %w", err)
	}
	defer r.Close()

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}
	open := func(name string) (io.ReadCloser, error) {
		f, ok := files[name]
		if !ok {
			return nil, os.ErrNotExist
		}
		return f.Open()
	}
	return parseAll(open)
}

func parseAll(open func(string) (io.ReadCloser, error)) (*Feed, []ParseError, error) {
	feed := &Feed{}
	var errs []ParseError

	required := []struct {
		name  string
		parse func(io.Reader, *[]ParseError) error
	}{
		{"stops.txt", func(r io.Reader, e *[]ParseError) (err error) {
			feed.Stops, err = parseFile[StopRow]("stops.txt", r, e)
			return
		}},
		{"routes.txt", func(r io.Reader, e *[]ParseError) (err error) {
			feed.Routes, err = parseFile[RouteRow]("routes.txt", r, e)
			return
		}},
		{"trips.txt", func(r io.Reader, e *[]ParseError) (err error) {
			feed.Trips, err = parseFile[TripRow]("trips.txt", r, e)
			return
		}},
		{"stop_times.txt", func(r io.Reader, e *[]ParseError) (err error) {
			feed.StopTimes, err = parseFile[StopTimeRow]("stop_times.txt", r, e)
			return
		}},
	}
	for _, f := range required {
		rc, err := open(f.name)
		if err != nil {
			return nil, errs, fmt.Errorf("open %s: %w", f.name, err)
		}
		err = f.parse(rc, &errs)
		rc.Close()
		if err != nil {
			return nil, errs, fmt.Errorf("read %s: %w", f.name, err)
		}
	}

	// Calendar files are optional; absence just means no service-day filtering.
	if rc, err := open("calendar.txt"); err == nil {
		feed.Calendar, err = parseFile[CalendarRow]("calendar.txt", rc, &errs)
		rc.Close()
		if err != nil {
			return nil, errs, fmt.Errorf("read calendar.txt: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errs, fmt.Errorf("open calendar.txt: %w", err)
	}
	if rc, err := open("calendar_dates.txt"); err == nil {
		feed.CalendarDates, err = parseFile[CalendarDateRow]("calendar_dates.txt", rc, &errs)
		rc.Close()
		if err != nil {
			return nil, errs, fmt.Errorf("read calendar_dates.txt: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errs, fmt.Errorf("open calendar_dates.txt: %w", err)
	}

	return feed, errs, nil
}

// parseFile decodes one tabular file into rows of T. The header row names the
// columns; unknown columns are ignored, rows missing a required column or
// malformed beyond CSV repair are skipped and recorded in errs.
func parseFile[T any](name string, r io.Reader, errs *[]ParseError) ([]T, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}

	fieldMap := buildFieldMap[T](header)
	reqIdx, missing := requiredIndexes(name, header)
	if len(missing) > 0 {
		// Without a required column nothing in the file is usable.
		*errs = append(*errs, ParseError{
			File:   name,
			Line:   1,
			Reason: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		})
		return nil, nil
	}

	var results []T
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				*errs = append(*errs, ParseError{File: name, Line: line, Reason: pe.Err.Error()})
				continue
			}
			return results, fmt.Errorf("read record: %w", err)
		}
		if skip := missingRequired(record, header, reqIdx); skip != "" {
			*errs = append(*errs, ParseError{
				File:   name,
				Line:   line,
				Reason: fmt.Sprintf("missing required value for %s", skip),
			})
			continue
		}
		results = append(results, decodeRecord[T](record, fieldMap))
	}
	return results, nil
}

type fieldMapping struct {
	csvIndex   int
	fieldIndex int
}

// buildFieldMap maps header column positions to struct fields via csv tags.
func buildFieldMap[T any](header []string) []fieldMapping {
	var t T
	typ := reflect.TypeOf(t)

	tagToField := make(map[string]int)
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("csv"); tag != "" {
			tagToField[tag] = i
		}
	}

	var mappings []fieldMapping
	for csvIdx, colName := range header {
		if fieldIdx, ok := tagToField[strings.TrimSpace(colName)]; ok {
			mappings = append(mappings, fieldMapping{csvIndex: csvIdx, fieldIndex: fieldIdx})
		}
	}
	return mappings
}

func requiredIndexes(file string, header []string) (idx []int, missing []string) {
	for _, col := range requiredColumns[file] {
		found := -1
		for i, h := range header {
			if strings.TrimSpace(h) == col {
				found = i
				break
			}
		}
		if found == -1 {
			missing = append(missing, col)
			continue
		}
		idx = append(idx, found)
	}
	return idx, missing
}

// missingRequired returns the name of the first required column the record
// has no value for, or "" when the row is complete.
func missingRequired(record, header []string, reqIdx []int) string {
	for _, i := range reqIdx {
		if i >= len(record) || strings.TrimSpace(record[i]) == "" {
			return header[i]
		}
	}
	return ""
}

func decodeRecord[T any](record []string, fieldMap []fieldMapping) T {
	var t T
	v := reflect.ValueOf(&t).Elem()
	for _, fm := range fieldMap {
		if fm.csvIndex < len(record) {
			v.Field(fm.fieldIndex).SetString(strings.TrimSpace(record[fm.csvIndex]))
		}
	}
	return t
}
