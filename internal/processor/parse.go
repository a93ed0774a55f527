package processor

import (
	"bytes"

	"github.com/woozymasta/geodraft/internal/geo"
	"github.com/woozymasta/geodraft/internal/reproject"
)

// parsed is a format parser's output before normalization.
type parsed struct {
	fc       geo.FeatureCollection
	dropped  int
	warnings []string
}

type parseOptions struct {
	filename string
	crs      string
	engine   *reproject.Engine
}

var parsers = map[Format]func([]byte, parseOptions) (parsed, error){
	FormatDXF:     parseDXF,
	FormatGPX:     parseGPX,
	FormatKML:     parseKML,
	FormatGeoJSON: parseGeoJSON,
}

// parse dispatches to the parser of the format. Blank input is empty, not
// malformed, whatever the format.
func parse(format Format, data []byte, opts parseOptions) (parsed, error) {
	fn, ok := parsers[format]
	if !ok {
		return parsed{}, &ParseError{Reason: ReasonUnsupportedFormat, Err: ErrUnsupportedFormat}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return parsed{}, empty("%s input is empty", format)
	}
	return fn(data, opts)
}
