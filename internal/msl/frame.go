package msl

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
)

// rawEnvelope is the on-wire shape shared by the header object and every
// payload object (spec.md §6): a signed envelope whose own fields vary by
// position in the stream, carried as raw JSON so the caller can decide
// whether it is looking at {entityauthdata?, mastertoken?, headerdata,
// signature} or {payload, signature}.
type rawEnvelope map[string]json.RawMessage

// frameReader yields the next self-delimited textual object (spec.md §4.1)
// from a raw byte stream: the header object first, then zero or more
// payload chunk objects, in canonical UTF-8 JSON. It is single-consumer;
// the json.Decoder may read bytes of later objects into its own buffer
// ahead of the object it returns, and keeps them for the next call.
type frameReader struct {
	dec *json.Decoder
	br  *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	br := bufio.NewReader(r)
	return &frameReader{dec: json.NewDecoder(br), br: br}
}

// next returns the next frame, or io.EOF if the byte source is exhausted
// between objects (a clean end of stream). A malformed object, or a byte
// source that ends mid-object, is a fatal parse error carrying no message
// ID, per spec.md §4.1.
func (f *frameReader) next() (rawEnvelope, error) {
	var env rawEnvelope
	err := f.dec.Decode(&env)
	if err == nil {
		return env, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, newError(KindMessageFormatError, nil, "", "", err)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return nil, newError(KindJSONParseError, nil, "", "", err)
	}
	return nil, newError(KindMessageFormatError, nil, "", "", err)
}

// field decodes one named field of an envelope into dst. A missing field
// leaves dst untouched and reports ok=false; a present-but-malformed field
// is a parse error.
func (e rawEnvelope) field(name string, dst interface{}) (ok bool, err error) {
	raw, present := e[name]
	if !present || raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, newError(KindJSONParseError, nil, "", "", err)
	}
	return true, nil
}

func (e rawEnvelope) has(name string) bool {
	raw, present := e[name]
	return present && raw != nil
}
