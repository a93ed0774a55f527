// Package dxf reads the ENTITIES section of ASCII and binary DXF drawings
// into positioned entities. Coordinates are returned as stored in the file;
// projection and geometry construction are left to the caller.
//
// Entities are decoded by github.com/rpaloschi/dxf-go. This package adds the
// binary encoding and MTEXT, which dxf-go does not read, and keeps count of
// the entities it could not position.
package dxf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rpaloschi/dxf-go/core"
	"github.com/rpaloschi/dxf-go/entities"
	"github.com/rpaloschi/dxf-go/sections"
	"github.com/rs/zerolog/log"
)

// ErrMalformed is returned when the group code stream cannot be read.
var ErrMalformed = errors.New("malformed dxf")

// Class groups entity types by the geometry they carry.
type Class int

const (
	// ClassPoint entities have a single insertion or centre position.
	ClassPoint Class = iota + 1
	// ClassLine is a two point LINE.
	ClassLine
	// ClassPolyline is an LWPOLYLINE, a POLYLINE with its VERTEX list or a SPLINE.
	ClassPolyline
)

// Entity is a positioned drawing entity.
type Entity struct {
	Type   string
	Class  Class
	Layer  string
	Handle string
	Points []orb.Point
	// Closed is set from the polyline flag; rings may also close geometrically.
	Closed bool
}

// Drawing is the result of reading a file.
type Drawing struct {
	Entities []Entity
	// Skipped counts entities that were unsupported, positionless or unreadable.
	Skipped int
}

// Option configures the reader.
type Option func(*reader)

// WithStringDecoder converts string values read from binary files, e.g. from
// a legacy code page to UTF-8. ASCII files are expected to be UTF-8 already.
func WithStringDecoder(fn func(string) string) Option {
	return func(r *reader) { r.decode = fn }
}

type reader struct {
	decode func(string) string
}

var (
	eofTag    = core.NewTag(0, core.NewStringValue("EOF"))
	endsecTag = core.NewTag(0, core.NewStringValue("ENDSEC"))
	seqendTag = core.NewTag(0, core.NewStringValue("SEQEND"))
)

// nested lists the entity types dxf-go closes with a SEQEND, and the type
// of the entities that follow them.
var nested = map[string]string{
	"POLYLINE": "VERTEX",
	"INSERT":   "ATTRIB",
}

func init() {
	// dxf-go reports every discarded tag on stderr.
	core.Log.SetOutput(traceWriter{})
	core.Log.SetPrefix("")
}

type traceWriter struct{}

func (traceWriter) Write(p []byte) (int, error) {
	log.Trace().Str("component", "dxf-go").Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

// Parse reads a DXF file from memory.
func Parse(data []byte, opts ...Option) (*Drawing, error) {
	r := &reader{}
	for _, opt := range opts {
		opt(r)
	}

	var (
		tags core.TagSlice
		err  error
	)
	if IsBinary(data) {
		tags, err = readBinary(data, r.decode)
	} else {
		tags, err = readASCII(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}

	return assemble(tags)
}

// Read reads an ASCII or binary DXF stream.
func Read(rd io.Reader, opts ...Option) (*Drawing, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	return Parse(data, opts...)
}

// readASCII drains the dxf-go tagger. The tagger panics on group codes it
// has no value type for.
func readASCII(rd io.Reader) (tags core.TagSlice, err error) {
	defer func() {
		if p := recover(); p != nil {
			tags, err = nil, fmt.Errorf("%w: tag %d: unsupported group code", ErrMalformed, len(tags)+1)
		}
	}()

	next := core.Tagger(rd)
	for {
		tag, err := next()
		if err != nil {
			return nil, fmt.Errorf("%w: tag %d: %v", ErrMalformed, len(tags)+1, err)
		}
		if *tag == core.NoneTag {
			return tags, nil
		}
		tags = append(tags, tag)
	}
}

func assemble(tags core.TagSlice) (*Drawing, error) {
	// SplitTagChunks runs off the end of a stream that stops mid section.
	if n := len(tags); n > 0 && !tags[n-1].Equals(eofTag) && !tags[n-1].Equals(endsecTag) {
		return nil, fmt.Errorf("%w: unexpected end of file", ErrMalformed)
	}

	d := &Drawing{}
	for _, section := range sections.SplitTagChunks(tags, eofTag, endsecTag) {
		if len(section) < 2 || section[1].Code != 2 || section[1].Value.ToString() != "ENTITIES" {
			continue
		}

		body := section[2:]
		if n := len(body); n > 0 && body[n-1].Equals(endsecTag) {
			body = body[:n-1]
		}
		d.readEntities(core.TagGroups(body, 0))
		break
	}
	return d, nil
}

func (d *Drawing) readEntities(groups []core.TagSlice) {
	for i := 0; i < len(groups); i++ {
		head := groups[i]
		typ := head[0].Value.ToString()

		if typ == "MTEXT" {
			d.add(mtext(head))
			continue
		}

		run := []core.TagSlice{head}
		if child, ok := nested[typ]; ok {
			for i+1 < len(groups) && groups[i+1][0].Value.ToString() == child {
				i++
				run = append(run, groups[i])
			}
			if i+1 < len(groups) && groups[i+1][0].Equals(seqendTag) {
				i++
				run = append(run, groups[i])
			} else {
				// missing SEQEND: the sequence ends at the next entity
				run = append(run, core.TagSlice{seqendTag})
			}
		}

		d.add(decode(run))
	}
}

func (d *Drawing) add(e Entity, ok bool) {
	if !ok {
		d.Skipped++
		return
	}
	d.Entities = append(d.Entities, e)
}

// decode builds the first entity of run with dxf-go. Its constructors index
// into point lists sized by count groups, so a lying count panics.
func decode(run []core.TagSlice) (e Entity, ok bool) {
	defer func() {
		if recover() != nil {
			e, ok = Entity{}, false
		}
	}()

	list, err := sections.NewEntityList(run)
	if err != nil || len(list) == 0 {
		return Entity{}, false
	}
	return convert(list[0], run[0])
}

func convert(ent entities.Entity, tags core.TagSlice) (Entity, bool) {
	e := Entity{
		Type:   tags[0].Value.ToString(),
		Layer:  stringGroup(tags, 8),
		Handle: stringGroup(tags, 5),
	}

	switch v := ent.(type) {
	case *entities.Point:
		return e.at(tags, v.Location)
	case *entities.Insert:
		return e.at(tags, v.InsertionPoint)
	case *entities.Text:
		return e.at(tags, v.FirstAlignmentPoint)
	case *entities.Circle:
		return e.at(tags, v.Center)
	case *entities.Arc:
		return e.at(tags, v.Center)
	case *entities.Ellipse:
		return e.at(tags, v.Center)

	case *entities.Line:
		if !hasGroups(tags, 10, 20, 11, 21) {
			return Entity{}, false
		}
		e.Class = ClassLine
		e.Points = []orb.Point{xy(v.Start), xy(v.End)}
		return e, true

	case *entities.LWPolyline:
		// the vertex count group may overstate the vertices present
		n := min(len(tags.AllWithCode(10)), len(v.Points))
		for _, p := range v.Points[:n] {
			e.Points = append(e.Points, xy(p.Point))
		}
		e.Closed = v.Closed

	case *entities.Polyline:
		for _, vx := range v.Vertices {
			if vx.SplineFrameCtrlPoint {
				continue
			}
			e.Points = append(e.Points, xy(vx.Location))
		}
		e.Closed = v.Closed

	case *entities.Spline:
		pts := v.FitPoints
		if len(pts) == 0 {
			pts = v.ControlPoints
		}
		for _, p := range pts {
			e.Points = append(e.Points, xy(p))
		}
		e.Closed = v.Closed

	default:
		return Entity{}, false
	}

	e.Class = ClassPolyline
	return e, len(e.Points) >= 2
}

// at positions a single point entity. dxf-go leaves absent coordinates at
// zero, so the groups themselves must be present.
func (e Entity) at(tags core.TagSlice, p core.Point) (Entity, bool) {
	if !hasGroups(tags, 10, 20) {
		return Entity{}, false
	}
	e.Class = ClassPoint
	e.Points = []orb.Point{xy(p)}
	return e, true
}

// mtext reads the insertion point of an MTEXT entity, which dxf-go has no
// type for.
func mtext(tags core.TagSlice) (Entity, bool) {
	x, okX := floatGroup(tags, 10)
	y, okY := floatGroup(tags, 20)
	if !okX || !okY {
		return Entity{}, false
	}
	return Entity{
		Type:   "MTEXT",
		Class:  ClassPoint,
		Layer:  stringGroup(tags, 8),
		Handle: stringGroup(tags, 5),
		Points: []orb.Point{{x, y}},
	}, true
}

func xy(p core.Point) orb.Point {
	return orb.Point{p.X, p.Y}
}

func hasGroups(tags core.TagSlice, codes ...int) bool {
	for _, code := range codes {
		if len(tags.AllWithCode(code)) == 0 {
			return false
		}
	}
	return true
}

func stringGroup(tags core.TagSlice, code int) string {
	for _, tag := range tags.RegularTags() {
		if tag.Code == code {
			s, _ := core.AsString(tag.Value)
			return s
		}
	}
	return ""
}

func floatGroup(tags core.TagSlice, code int) (float64, bool) {
	for _, tag := range tags.RegularTags() {
		if tag.Code == code {
			return core.AsFloat(tag.Value)
		}
	}
	return 0, false
}
