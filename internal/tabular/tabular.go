// Package tabular imports and exports quads as delimited text: one quad
// per line, three columns, each value in its wire form. Lines starting
// with '#' and blank lines are skipped.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
)

// Format is a column delimiter
type Format struct {
	Name  string
	Comma rune
}

var (
	TSV = Format{Name: "tsv", Comma: '\t'}
	CSV = Format{Name: "csv", Comma: ','}
)

// ParseFormat returns the format with the given name or file extension
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "", "tsv", "tab", "text/tab-separated-values":
		return TSV, nil
	case "csv", "text/csv":
		return CSV, nil
	default:
		return Format{}, kgerr.New(kgerr.CodeTabularParseInvalid, fmt.Sprintf("unsupported format: %s", name))
	}
}

// Reader reads quads from delimited text
type Reader struct {
	csv   *csv.Reader
	codec *model.Codec
}

func NewReader(r io.Reader, format Format, codec *model.Codec) *Reader {
	cr := csv.NewReader(r)
	cr.Comma = format.Comma
	cr.Comment = '#'
	cr.FieldsPerRecord = 3
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return &Reader{csv: cr, codec: codec}
}

// Read returns the next quad, or io.EOF after the last one
func (r *Reader) Read() (model.Quad, error) {
	record, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return model.Quad{}, io.EOF
	}
	if err != nil {
		var line any
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			line = parseErr.Line
		}
		return model.Quad{}, kgerr.Wrap(err, kgerr.CodeTabularParseInvalid, "reading quad", kgerr.Field("line", line))
	}
	return model.NewQuad(r.codec.Parse(record[0]), r.codec.Parse(record[1]), r.codec.Parse(record[2])), nil
}

// ReadAll reads every quad of r
func ReadAll(r io.Reader, format Format, codec *model.Codec) ([]model.Quad, error) {
	reader := NewReader(r, format, codec)
	var quads []model.Quad
	for {
		q, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return quads, nil
		}
		if err != nil {
			return nil, err
		}
		quads = append(quads, q)
	}
}

// Writer writes quads as delimited text
type Writer struct {
	w      io.Writer
	csv    *csv.Writer
	format Format
	codec  *model.Codec
}

func NewWriter(w io.Writer, format Format, codec *model.Codec) *Writer {
	cw := csv.NewWriter(w)
	cw.Comma = format.Comma
	return &Writer{w: w, csv: cw, format: format, codec: codec}
}

// Write buffers one quad. Call Flush when done.
func (w *Writer) Write(q model.Quad) error {
	record := []string{w.codec.Render(q.Subject), w.codec.Render(q.Predicate), w.codec.Render(q.Object)}
	if !strings.HasPrefix(record[0], "#") {
		if err := w.csv.Write(record); err != nil {
			return kgerr.Wrap(err, kgerr.CodeTabularWriteFailure, "writing quad")
		}
		return nil
	}

	// csv only quotes for its own special characters, but an unquoted
	// leading '#' would read back as a comment
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return kgerr.Wrap(err, kgerr.CodeTabularWriteFailure, "writing quad")
	}
	quoted := `"` + strings.ReplaceAll(record[0], `"`, `""`) + `"` + string(w.format.Comma)
	if _, err := io.WriteString(w.w, quoted); err != nil {
		return kgerr.Wrap(err, kgerr.CodeTabularWriteFailure, "writing quad")
	}
	if err := w.csv.Write(record[1:]); err != nil {
		return kgerr.Wrap(err, kgerr.CodeTabularWriteFailure, "writing quad")
	}
	return nil
}

// Flush writes buffered quads to the underlying writer
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return kgerr.Wrap(err, kgerr.CodeTabularWriteFailure, "flushing quads")
	}
	return nil
}

// WriteAll writes quads and flushes
func WriteAll(w io.Writer, format Format, codec *model.Codec, quads []model.Quad) error {
	writer := NewWriter(w, format, codec)
	for _, q := range quads {
		if err := writer.Write(q); err != nil {
			return err
		}
	}
	return writer.Flush()
}
