package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Output formats accepted by NewWriter.
const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatHTML  = "html"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriterOptions tunes the file writers.
type WriterOptions struct {
	// ExtraColumns are appended after the fixed CSV columns, in order.
	ExtraColumns []string
	// BOM prefixes CSV output with a UTF-8 byte order mark so spreadsheet
	// tools pick the right encoding for non-Latin text.
	BOM   bool
	Title string
}

// NewWriter builds the writers for a comma separated format list such as
// "csv,html". The first format writes to filename and every other one
// writes next to it with its own extension. "dual" means csv,jsonl.
func NewWriter(formats, filename string, opts WriterOptions) (OutputWriter, error) {
	list, err := config.ParseFormats(formats)
	if err != nil {
		return nil, err
	}
	if len(list) == 1 {
		return newFormatWriter(list[0], filename, opts)
	}

	writers := make([]OutputWriter, 0, len(list))
	used := make(map[string]string, len(list))
	fail := func(err error) (OutputWriter, error) {
		for _, w := range writers {
			_ = w.Close()
		}
		return nil, err
	}
	for i, format := range list {
		path := filename
		if i > 0 {
			path = SiblingPath(filename, "."+format)
		}
		if prev, ok := used[path]; ok {
			return fail(fmt.Errorf("%s and %s outputs would both write %s", prev, format, path))
		}
		used[path] = format

		w, err := newFormatWriter(format, path, opts)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	return NewMultiWriter(writers...), nil
}

func newFormatWriter(format, filename string, opts WriterOptions) (OutputWriter, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(filename, opts)
	case FormatJSON:
		return NewJSONWriter(filename)
	case FormatJSONL:
		return NewJSONLWriter(filename)
	case FormatHTML:
		return NewHTMLWriter(filename, opts.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// SiblingPath swaps the extension of filename for ext.
func SiblingPath(filename, ext string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	extras []string
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row:
// name, price, image_url, link and then the extra columns.
func NewCSVWriter(filename string, opts WriterOptions) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	if opts.BOM {
		if _, err := f.Write(utf8BOM); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv bom: %w", err)
		}
	}

	writer := csv.NewWriter(f)
	header := append([]string{"name", "price", "image_url", "link"}, opts.ExtraColumns...)
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
		extras: append([]string(nil), opts.ExtraColumns...),
	}, nil
}

// Write appends records to the CSV output. Absent fields become empty cells.
func (cw *CSVWriter) Write(records []*models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, r := range records {
		row := make([]string, 0, 4+len(cw.extras))
		row = append(row, r.Name, FormatPrice(r.Price), r.ImageURL, r.Link)
		for _, key := range cw.extras {
			row = append(row, r.Extra[key])
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONLWriter writes newline-delimited JSON records.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONLWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONLWriter) Write(records []*models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, r := range records {
		if err := jw.encoder.Encode(r); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSONL file has data.
func (jw *JSONLWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat jsonl file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("jsonl file is empty")
	}
	return nil
}

// JSONWriter writes all records as one indented JSON array. The closing
// bracket is written by Close.
type JSONWriter struct {
	file   *os.File
	writer *bufio.Writer
	count  int
	mu     sync.Mutex
}

// NewJSONWriter initialises the JSON array writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	if _, err := buffer.WriteString("["); err != nil {
		f.Close()
		return nil, fmt.Errorf("write json header: %w", err)
	}
	return &JSONWriter{
		file:   f,
		writer: buffer,
	}, nil
}

// Write appends records to the array.
func (jw *JSONWriter) Write(records []*models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, r := range records {
		data, err := json.MarshalIndent(r, "  ", "  ")
		if err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		sep := ",\n  "
		if jw.count == 0 {
			sep = "\n  "
		}
		if _, err := jw.writer.WriteString(sep); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
		if _, err := jw.writer.Write(data); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
		jw.count++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close terminates the array and closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	tail := "\n]\n"
	if jw.count == 0 {
		tail = "]\n"
	}
	if _, err := jw.writer.WriteString(tail); err != nil {
		return fmt.Errorf("write json footer: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures at least one record was written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.count == 0 {
		return fmt.Errorf("json file has no records")
	}
	return nil
}

// FormatPrice renders a price with two decimals, or "" when absent.
func FormatPrice(price *float64) string {
	if price == nil {
		return ""
	}
	return strconv.FormatFloat(*price, 'f', 2, 64)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
