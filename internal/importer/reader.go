package importer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// fileReader streams records from a CSV or tab-delimited export.
// Excel exports arrive with a UTF-8 BOM more often than not, so input
// is decoded through a BOM-stripping transformer. The delimiter is
// sniffed from the header line: a tab-separated .txt export has tabs
// and no commas in its header.
type fileReader struct {
	csv     *csv.Reader
	headers []string
	rowNum  int
}

func newFileReader(r io.Reader) (*fileReader, error) {
	decoded := transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
	buffered := bufio.NewReader(decoded)

	headerLine, err := buffered.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("read header: %w", err)
	}
	delimiter := ','
	if line, _, ok := strings.Cut(string(headerLine), "\n"); ok || len(line) > 0 {
		if strings.Contains(line, "\t") && !strings.Contains(line, ",") {
			delimiter = '\t'
		}
	}

	cr := csv.NewReader(buffered)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}

	return &fileReader{csv: cr, headers: headers, rowNum: 1}, nil
}

// Headers returns the header row.
func (fr *fileReader) Headers() []string { return fr.headers }

// Next returns the next data record and its 1-based row number (the
// header is row 1, the first data row is row 2). io.EOF ends the file.
func (fr *fileReader) Next() ([]string, int, error) {
	record, err := fr.csv.Read()
	if err != nil {
		return nil, 0, err
	}
	fr.rowNum++
	return record, fr.rowNum, nil
}

// countDataRows counts the data records in a file without keeping them
// in memory. Used to set total_rows before processing starts.
func countDataRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fr, err := newFileReader(f)
	if err != nil {
		return 0, err
	}
	count := 0
	for {
		if _, _, err := fr.Next(); err != nil {
			if err == io.EOF {
				return count, nil
			}
			return 0, fmt.Errorf("count rows: %w", err)
		}
		count++
	}
}
