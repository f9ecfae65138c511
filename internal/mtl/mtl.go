// Package mtl reads USGS MTL metadata headers: plain text files carrying one
// KEY = VALUE assignment per line, grouped by GROUP / END_GROUP markers.
package mtl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MissingKeyError reports that none of an ordered list of candidate keys was
// present in the header. Candidate lists exist because the same field moved
// names across processing collections (for example DATE_ACQUIRED versus the
// older ACQUISITION_DATE).
type MissingKeyError struct {
	Candidates []string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("no value for any of the header keys: %s", strings.Join(e.Candidates, ", "))
}

// Header is a parsed MTL file. Values are immutable after parsing.
type Header struct {
	values map[string]string
}

// Parse reads KEY = VALUE lines from r. Lines that do not split into exactly
// two fields on '=' are ignored. GROUP and END_GROUP markers are kept like
// any other key, so Get("GROUP") reports the last section name seen. Quotes
// are stripped from values.
func Parse(r io.Reader) (*Header, error) {
	values := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "=")
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.ReplaceAll(strings.TrimSpace(parts[1]), "\"", "")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	return &Header{values: values}, nil
}

// ParseFile reads and parses the MTL file at path.
func ParseFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening header %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Get returns the raw value for a single key.
func (h *Header) Get(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Lookup tries each candidate key in order and returns the first value
// found. When every candidate is absent it returns a MissingKeyError naming
// all of them.
func (h *Header) Lookup(candidates ...string) (string, error) {
	for _, key := range candidates {
		if v, ok := h.values[key]; ok {
			return v, nil
		}
	}
	return "", &MissingKeyError{Candidates: candidates}
}

// LookupFloat is Lookup followed by a float64 conversion.
func (h *Header) LookupFloat(candidates ...string) (float64, error) {
	v, err := h.Lookup(candidates...)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("header value %q is not a number: %w", v, err)
	}
	return f, nil
}

// LookupInt is Lookup followed by an integer conversion. Values carried as
// floats in the header (occasionally row and path are) truncate.
func (h *Header) LookupInt(candidates ...string) (int, error) {
	v, err := h.Lookup(candidates...)
	if err != nil {
		return 0, err
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("header value %q is not a number: %w", v, err)
	}
	return int(f), nil
}

// FloatOr returns the parsed value of the first present candidate, or the
// fallback when no candidate exists. Parse failures still error: a present
// but malformed value is never silently replaced.
func (h *Header) FloatOr(fallback float64, candidates ...string) (float64, error) {
	v, err := h.Lookup(candidates...)
	if err != nil {
		var missing *MissingKeyError
		if errors.As(err, &missing) {
			return fallback, nil
		}
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("header value %q is not a number: %w", v, err)
	}
	return f, nil
}
