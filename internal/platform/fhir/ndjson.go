package fhir

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// NDJSONReader iterates resources in NDJSON (Newline Delimited JSON) format,
// the file format used by the FHIR Bulk Data Access specification: one
// complete JSON object per line.
type NDJSONReader struct {
	r *bufio.Reader
}

// maxLineBytes bounds a single NDJSON line. Some vendors inline attachments
// into DocumentReference resources, so lines can run to several megabytes.
const maxLineBytes = 16 * 1024 * 1024

// ErrLineTooLong reports a line over maxLineBytes. The reader discards the
// rest of the offending line, so the caller can keep iterating and only
// loses that one record.
var ErrLineTooLong = errors.New("ndjson line exceeds size limit")

// NewNDJSONReader creates an NDJSONReader over r.
func NewNDJSONReader(r io.Reader) *NDJSONReader {
	return &NDJSONReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-empty line, or io.EOF when the input is
// exhausted. Blank lines are skipped; leading/trailing whitespace is kept
// out of the returned slice. An ErrLineTooLong result consumes only the
// oversized line; subsequent calls continue with the line after it.
func (n *NDJSONReader) Next() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := n.r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxLineBytes {
			if derr := n.discardRestOfLine(err); derr != nil && derr != io.EOF {
				return nil, derr
			}
			return nil, ErrLineTooLong
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			return nil, err
		}

		line := bytes.TrimSpace(buf)
		if len(line) == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			buf = buf[:0]
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
}

// discardRestOfLine reads until the newline terminating the current line.
// err is the result of the ReadSlice call that tripped the size limit; when
// it already found the newline (or the end of input) there is nothing left
// to discard.
func (n *NDJSONReader) discardRestOfLine(err error) error {
	for err == bufio.ErrBufferFull {
		_, err = n.r.ReadSlice('\n')
	}
	return err
}

// NextResource parses the next line into a generic FHIR resource map.
func (n *NDJSONReader) NextResource() (map[string]interface{}, error) {
	line, err := n.Next()
	if err != nil {
		return nil, err
	}
	var resource map[string]interface{}
	if err := json.Unmarshal(line, &resource); err != nil {
		return nil, err
	}
	return resource, nil
}
