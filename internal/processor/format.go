// Package processor imports geospatial files into normalized feature
// collections and exports them back to interchange formats.
package processor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the closed set of supported file formats.
type Format string

// Supported formats.
const (
	FormatDXF     Format = "dxf"
	FormatGPX     Format = "gpx"
	FormatKML     Format = "kml"
	FormatGeoJSON Format = "geojson"
)

// Formats lists every supported format.
var Formats = []Format{FormatDXF, FormatGPX, FormatKML, FormatGeoJSON}

// Ext returns the canonical file extension, with the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ContentType returns the MIME type used when serving the format.
func (f Format) ContentType() string {
	switch f {
	case FormatGPX:
		return "application/gpx+xml"
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	case FormatGeoJSON:
		return "application/geo+json"
	default:
		return "application/dxf"
	}
}

// FormatFromFilename selects the format from the file extension.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return ParseFormat(ext)
}

// ParseFormat resolves a format name. "json" is accepted for GeoJSON.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dxf":
		return FormatDXF, nil
	case "gpx":
		return FormatGPX, nil
	case "kml":
		return FormatKML, nil
	case "geojson", "json":
		return FormatGeoJSON, nil
	default:
		return "", &ParseError{Reason: ReasonUnsupportedFormat, Err: fmt.Errorf("unsupported format %q", name)}
	}
}

// Reason classifies import failures.
type Reason string

// Import failure reasons.
const (
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonMalformed         Reason = "malformed"
	ReasonEmpty             Reason = "empty"
)

// Sentinels matched by ParseError through errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformed         = errors.New("malformed file")
	ErrEmpty             = errors.New("no usable features")
)

// ParseError reports why a file could not be imported.
type ParseError struct {
	Reason Reason
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches the reason sentinels.
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrUnsupportedFormat:
		return e.Reason == ReasonUnsupportedFormat
	case ErrMalformed:
		return e.Reason == ReasonMalformed
	case ErrEmpty:
		return e.Reason == ReasonEmpty
	}
	return false
}

func malformed(format string, args ...interface{}) error {
	return &ParseError{Reason: ReasonMalformed, Err: fmt.Errorf(format, args...)}
}

func empty(format string, args ...interface{}) error {
	return &ParseError{Reason: ReasonEmpty, Err: fmt.Errorf(format, args...)}
}
