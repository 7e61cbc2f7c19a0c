package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/tau-omega/stadsmonitor/internal/aggregate"
	"github.com/tau-omega/stadsmonitor/internal/geo"
	"github.com/tau-omega/stadsmonitor/internal/models"
)

// ErrSeparatorNotFound signals that separator guessing fell back to a
// tab; the table may still parse but deserves a warning.
var ErrSeparatorNotFound = errors.New("could not guess column separator, assuming tab")

// Latitude and longitude bounds of the Netherlands, used to repair
// Excel sheets whose locale dropped the decimal separator.
const (
	latMin, latMax = 51.0, 54.0
	lonMin, lonMax = 3.0, 8.0
)

// ReadOptions steer the tabular reader. Zero values mean "guess".
type ReadOptions struct {
	Name           string `json:"name"`
	ReadType       string `json:"read_type"`
	Separator      string `json:"separator"`
	HeaderRow      int    `json:"header_row"` // 1-based, 0 treated as 1
	LatColumn      string `json:"lat_column"`
	LonColumn      string `json:"lon_column"`
	CodeColumn     string `json:"code_column"`
	GeometryColumn string `json:"geometry_column"`
}

// UploadPreview is what the upload options form needs: the columns of
// the file, the guessed separator and candidate coordinate columns.
type UploadPreview struct {
	Columns   []string            `json:"columns"`
	Separator string              `json:"separator"`
	LatColumn string              `json:"lat_column,omitempty"`
	LonColumn string              `json:"lon_column,omitempty"`
	Rows      []map[string]string `json:"rows"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// ReadFile parses an uploaded delimited text or xlsx file into a
// dataset without geometry. Geometry is attached by ApplyGeometry
// once the read type and columns are known.
func ReadFile(filename string, r io.Reader, opts ReadOptions) (*models.Dataset, []string, error) {
	var warnings []string

	header, rows, _, warn, err := readTable(filename, r, opts)
	if err != nil {
		return nil, nil, err
	}
	warnings = append(warnings, warn...)

	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	ds := models.NewDataset(name)
	ds.ReadType = opts.ReadType
	if ds.ReadType == "" {
		ds.ReadType = models.ReadTypeUnknown
	}
	ds.Columns = header
	for _, row := range rows {
		fields := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}
		ds.Records = append(ds.Records, models.Record{Fields: fields})
	}

	return ds, warnings, nil
}

func readTable(filename string, r io.Reader, opts ReadOptions) (header []string, rows [][]string, sep string, warnings []string, err error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return readDelimited(r, opts)
	case ".xlsx":
		header, rows, warnings, err = readXLSX(r, opts)
		return header, rows, "", warnings, err
	}
	return nil, nil, "", nil, fmt.Errorf("unsupported file type %q", filepath.Ext(filename))
}

func readDelimited(r io.Reader, opts ReadOptions) (header []string, rows [][]string, sep string, warnings []string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, "", nil, err
	}
	if !utf8.Valid(data) {
		decoded, derr := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if derr == nil {
			data = decoded
		}
	}

	lines := splitLines(string(data))
	headerRow := opts.HeaderRow
	if headerRow < 1 {
		headerRow = 1
	}
	if len(lines) < headerRow {
		return nil, nil, "", nil, fmt.Errorf("file has %d lines, header expected on line %d", len(lines), headerRow)
	}
	lines = lines[headerRow-1:]

	var comma rune
	if opts.Separator != "" {
		comma = []rune(opts.Separator)[0]
	} else {
		second := ""
		if len(lines) > 1 {
			second = lines[1]
		}
		var gerr error
		comma, gerr = GuessSeparator(lines[0], second)
		if gerr != nil {
			warnings = append(warnings, gerr.Error())
		}
	}

	cr := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, "", nil, fmt.Errorf("parsing table: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, "", nil, errors.New("empty table")
	}

	header = trimAll(records[0])
	return header, records[1:], string(comma), warnings, nil
}

func readXLSX(r io.Reader, opts ReadOptions) (header []string, rows [][]string, warnings []string, err error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil, errors.New("xlsx has no sheets")
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}

	headerRow := opts.HeaderRow
	if headerRow < 1 {
		headerRow = 1
	}
	if len(all) < headerRow {
		return nil, nil, nil, fmt.Errorf("sheet has %d rows, header expected on row %d", len(all), headerRow)
	}

	header = trimAll(all[headerRow-1])
	return header, all[headerRow:], warnings, nil
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// GuessSeparator picks the most frequent non-alphanumeric character
// of the first line whose count recurs on the second line. When
// nothing matches it returns a tab with ErrSeparatorNotFound.
func GuessSeparator(line1, line2 string) (rune, error) {
	counts1 := charCounts(line1)
	counts2 := charCounts(line2)

	type cand struct {
		ch    rune
		count int
	}
	cands := make([]cand, 0, len(counts1))
	for ch, n := range counts1 {
		cands = append(cands, cand{ch, n})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		return cands[i].ch < cands[j].ch
	})

	for _, c := range cands {
		if counts2[c.ch] == c.count {
			return c.ch, nil
		}
	}
	return '\t', ErrSeparatorNotFound
}

func charCounts(line string) map[rune]int {
	counts := make(map[rune]int)
	for _, ch := range line {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '\n' {
			continue
		}
		counts[ch]++
	}
	return counts
}

// GuessLatColumn finds the most likely latitude column.
func GuessLatColumn(columns []string) string {
	return guessColumn(columns, "lat", "breedtegraad")
}

// GuessLonColumn finds the most likely longitude column.
func GuessLonColumn(columns []string) string {
	return guessColumn(columns, "long", "lengtegraad")
}

func guessColumn(columns []string, substr, dutch string) string {
	for _, c := range columns {
		lc := strings.ToLower(c)
		if strings.Contains(lc, substr) || lc == dutch {
			return c
		}
	}
	return ""
}

// ApplyGeometry attaches geometry to a parsed table according to its
// read type. Region read types join the code column against the
// region set; the join must match at least one row.
func ApplyGeometry(ds *models.Dataset, opts ReadOptions, set *models.RegionSet) ([]string, error) {
	switch ds.ReadType {
	case models.ReadTypeLatLong:
		return applyLatLong(ds, opts)
	case models.ReadTypeGeometry:
		return applyGeometryColumn(ds, opts)
	case string(models.Buurt), string(models.Wijk), string(models.Gemeente):
		return applyRegionJoin(ds, opts, set)
	case models.ReadTypeUnknown, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown read type %q", ds.ReadType)
}

func applyLatLong(ds *models.Dataset, opts ReadOptions) ([]string, error) {
	latCol, lonCol := opts.LatColumn, opts.LonColumn
	if latCol == "" {
		latCol = GuessLatColumn(ds.Columns)
	}
	if lonCol == "" {
		lonCol = GuessLonColumn(ds.Columns)
	}
	if latCol == "" || lonCol == "" {
		return nil, errors.New("latitude or longitude column not found")
	}

	lats := make([]float64, len(ds.Records))
	lons := make([]float64, len(ds.Records))
	for i, rec := range ds.Records {
		lat, err := aggregate.CastFloat(rec.Fields[latCol])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", latCol, err)
		}
		lon, err := aggregate.CastFloat(rec.Fields[lonCol])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", lonCol, err)
		}
		lats[i], lons[i] = lat, lon
	}

	var warnings []string
	lats, warned := RepairCoordinates(lats, latMin, latMax)
	if warned {
		warnings = append(warnings, fmt.Sprintf("column %q has values outside latitude range %v-%v", latCol, latMin, latMax))
	}
	lons, warned = RepairCoordinates(lons, lonMin, lonMax)
	if warned {
		warnings = append(warnings, fmt.Sprintf("column %q has values outside longitude range %v-%v", lonCol, lonMin, lonMax))
	}

	for i := range ds.Records {
		ds.Records[i].Geometry = orb.Point{lons[i], lats[i]}
	}
	return warnings, nil
}

func applyGeometryColumn(ds *models.Dataset, opts ReadOptions) ([]string, error) {
	col := opts.GeometryColumn
	if col == "" {
		col = "geometry"
	}
	for i, rec := range ds.Records {
		raw, _ := rec.Fields[col].(string)
		if raw == "" {
			continue
		}
		g, err := geojson.UnmarshalGeometry([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid geometry: %w", i+1, err)
		}
		ds.Records[i].Geometry = geo.GeometryToWGS84(g.Geometry())
	}
	return nil, nil
}

func applyRegionJoin(ds *models.Dataset, opts ReadOptions, set *models.RegionSet) ([]string, error) {
	if set == nil {
		return nil, errors.New("region shapes not loaded")
	}
	codeCol := opts.CodeColumn
	if codeCol == "" {
		codeCol = set.Level.CodeColumn()
	}

	matched := 0
	for i, rec := range ds.Records {
		code, _ := rec.Fields[codeCol].(string)
		if r, ok := set.Get(strings.TrimSpace(code)); ok {
			ds.Records[i].Geometry = r.Geometry
			matched++
		}
	}
	if matched == 0 {
		return nil, fmt.Errorf("no values of column %q match a %s code", codeCol, set.Level)
	}
	return nil, nil
}

// RepairCoordinates rescales coordinates from Excel files whose
// locale stripped the decimal separator. Values are only touched when
// every one of them lies outside [lo, hi]; a value v becomes
// v / 10^floor(log10(v div lo)). If rescaling does not bring the
// values into range the originals are kept and the caller warned.
func RepairCoordinates(vals []float64, lo, hi float64) ([]float64, bool) {
	if len(vals) == 0 {
		return vals, false
	}
	for _, v := range vals {
		if v >= lo && v <= hi {
			return vals, false
		}
	}

	repaired := make([]float64, len(vals))
	ok := true
	for i, v := range vals {
		if v < lo {
			repaired[i] = v
			ok = false
			continue
		}
		scale := math.Pow(10, math.Floor(math.Log10(math.Floor(v/lo))))
		repaired[i] = v / scale
		if repaired[i] < lo || repaired[i] > hi {
			ok = false
		}
	}
	if !ok {
		return vals, true
	}
	return repaired, false
}

// ConvertTypes casts columns to the requested kinds (number, integer,
// text). Unknown columns and values that refuse to convert are left
// alone with a warning; the dataset itself never fails.
func ConvertTypes(ds *models.Dataset, kinds map[string]string) []string {
	var warnings []string
	for col, kind := range kinds {
		if !ds.Column(col) {
			warnings = append(warnings, fmt.Sprintf("column %q does not exist", col))
			continue
		}
		failures := 0
		for i, rec := range ds.Records {
			v, ok := rec.Fields[col]
			if !ok || v == nil {
				continue
			}
			converted, err := convertValue(v, kind)
			if err != nil {
				failures++
				continue
			}
			ds.Records[i].Fields[col] = converted
		}
		if failures > 0 {
			warnings = append(warnings, fmt.Sprintf("column %q: %d values could not be converted to %s", col, failures, kind))
		}
	}
	for _, w := range warnings {
		log.Print(w)
	}
	return warnings
}

func convertValue(v interface{}, kind string) (interface{}, error) {
	switch kind {
	case "number", "float":
		return aggregate.CastFloat(v)
	case "integer", "int":
		f, err := aggregate.CastFloat(v)
		if err != nil {
			return nil, err
		}
		return int(f), nil
	case "text", "string":
		return fmt.Sprintf("%v", v), nil
	}
	return nil, fmt.Errorf("unknown type %q", kind)
}

// Preview parses the head of an uploaded file for the options form.
func Preview(filename string, r io.Reader, maxRows int) (*UploadPreview, error) {
	header, rows, sep, warnings, err := readTable(filename, r, ReadOptions{})
	if err != nil {
		return nil, err
	}
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	p := &UploadPreview{
		Columns:   header,
		Separator: sep,
		LatColumn: GuessLatColumn(header),
		LonColumn: GuessLonColumn(header),
		Warnings:  warnings,
	}
	for _, row := range rows {
		m := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		p.Rows = append(p.Rows, m)
	}
	return p, nil
}
