package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSVSource reads a headered CSV file of numeric cells. Unlike parquet,
// CSV carries no row count metadata, so the file is scanned once when the
// source is opened.
type CSVSource struct {
	path      string
	file      *os.File
	reader    *csv.Reader
	columns   []string
	timeCol   int
	chunkSize int
	numRows   int64
	row       int64
}

// OpenCSV opens path. timeIndex names the time index column and may be empty.
func OpenCSV(path, timeIndex string, chunkSize int) (*CSVSource, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	count, err := countCSVRows(path)
	if err != nil {
		return nil, sourceErr(path, "count rows", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, sourceErr(path, "open", err)
	}
	reader := csv.NewReader(f)
	reader.ReuseRecord = true
	header, err := reader.Read()
	if err != nil {
		f.Close()
		return nil, sourceErr(path, "read header", err)
	}

	s := &CSVSource{
		path:      path,
		file:      f,
		reader:    reader,
		timeCol:   -1,
		chunkSize: chunkSize,
		numRows:   int64(count),
	}
	for i, col := range header {
		name := strings.TrimSpace(col)
		if timeIndex != "" && name == timeIndex {
			s.timeCol = i
			continue
		}
		s.columns = append(s.columns, name)
	}
	if timeIndex != "" && s.timeCol < 0 {
		f.Close()
		return nil, fmt.Errorf("%s: %w: time index %q", path, ErrColumnNotFound, timeIndex)
	}
	return s, nil
}

// CSVOpener returns an Opener for the CSV file at path.
func CSVOpener(path, timeIndex string) Opener {
	return func(chunkSize int) (Source, error) {
		return OpenCSV(path, timeIndex, chunkSize)
	}
}

func (s *CSVSource) NumRows() int64 { return s.numRows }

func (s *CSVSource) Next() (*Chunk, error) {
	c := &Chunk{
		Columns: s.columns,
		Values:  make([][]float64, len(s.columns)),
	}
	if s.timeCol >= 0 {
		c.Times = make([]time.Time, 0, s.chunkSize)
	}
	for i := range c.Values {
		c.Values[i] = make([]float64, 0, s.chunkSize)
	}

	for n := 0; n < s.chunkSize; n++ {
		record, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, sourceErr(s.path, "read", err)
		}
		s.row++
		col := 0
		for i, cell := range record {
			if i == s.timeCol {
				t, err := parseTime(cell)
				if err != nil {
					return nil, sourceErr(s.path, fmt.Sprintf("parse time at row %d", s.row), err)
				}
				c.Times = append(c.Times, t)
				continue
			}
			if col >= len(c.Values) {
				return nil, sourceErr(s.path, "read", fmt.Errorf("row %d has %d cells", s.row, len(record)))
			}
			v, err := parseFloat(cell)
			if err != nil {
				return nil, sourceErr(s.path, fmt.Sprintf("parse %q at row %d", s.columns[col], s.row), err)
			}
			c.Values[col] = append(c.Values[col], v)
			col++
		}
	}
	if c.Len() == 0 {
		return nil, io.EOF
	}
	if err := c.Validate(); err != nil {
		return nil, sourceErr(s.path, "read", err)
	}
	return c, nil
}

func (s *CSVSource) Close() error {
	if err := s.file.Close(); err != nil {
		return sourceErr(s.path, "close", err)
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	return strconv.ParseFloat(s, 64)
}

// parseTime accepts RFC3339 timestamps or unix seconds.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor unix seconds", s)
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
}

// countCSVRows counts the number of data rows in a CSV file (excluding header)
func countCSVRows(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, err
	}

	count := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		count++
	}

	return count, nil
}
