package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/woozymasta/geodraft/internal/crs"
	"github.com/woozymasta/geodraft/internal/reproject"

	"github.com/jessevdk/go-flags"
	"github.com/paulmach/orb"
)

type Options struct {
	Input       string `short:"i" long:"in" description:"Input file path, one \"x,y\" or \"x y\" pair per line. Reads from stdin if empty"`
	Output      string `short:"o" long:"out" description:"Output file path. Writes to stdout if empty"`
	From        string `short:"f" long:"from" description:"Source CRS" default:"EPSG:4326"`
	To          string `short:"t" long:"to" description:"Target CRS" required:"true"`
	Definitions string `short:"d" long:"definitions" description:"YAML file of extra CRS definitions"`
	Precision   int    `short:"p" long:"precision" description:"Decimals written, 9 for geodetic and 3 for projected targets when negative" default:"-1"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	defs := crs.BuiltinZones()
	if opts.Definitions != "" {
		extra, err := crs.LoadDefinitions(opts.Definitions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading definitions: %v\n", err)
			os.Exit(1)
		}
		defs = append(defs, extra...)
	}
	reg, err := crs.NewRegistry(defs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building registry: %v\n", err)
		os.Exit(1)
	}

	target, err := reg.Lookup(opts.To)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := reg.Lookup(opts.From); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	precision := opts.Precision
	if precision < 0 {
		precision = 3
		if target.IsGeodetic() {
			precision = 9
		}
	}

	// Read Input
	var in io.Reader = os.Stdin
	if opts.Input != "" {
		f, err := os.Open(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	var out io.Writer = os.Stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	engine := reproject.New(reg)
	w := bufio.NewWriter(out)

	count, skipped := 0, 0
	sc := bufio.NewScanner(in)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		p, err := parsePair(text)
		if err == nil {
			p, err = engine.Transform(p, opts.From, target.ID)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping line %d: %v\n", line, err)
			skipped++
			continue
		}

		fmt.Fprintf(w, "%s,%s\n",
			strconv.FormatFloat(p[0], 'f', precision, 64),
			strconv.FormatFloat(p[1], 'f', precision, 64))
		count++
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Converted %d coordinates to %s (%d skipped)\n", count, target.ID, skipped)
}

// parsePair reads "x,y", "x y" or "x;y".
func parsePair(s string) (orb.Point, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) < 2 {
		return orb.Point{}, fmt.Errorf("expected two values, got %q", s)
	}

	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid x %q", fields[0])
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid y %q", fields[1])
	}
	return orb.Point{x, y}, nil
}
