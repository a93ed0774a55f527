package processor

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// fallbackEncoding decodes text when detection fails. Drawings produced by
// French locale CAD software are the common case.
var fallbackEncoding encoding.Encoding = charmap.Windows1252

// toUTF8 converts text of unknown encoding to UTF-8 and returns the charset used.
func toUTF8(data []byte) ([]byte, string, error) {
	if utf8.Valid(data) {
		return data, "UTF-8", nil
	}

	enc, name := detectEncoding(data)
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, name, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, name, nil
}

func detectEncoding(data []byte) (encoding.Encoding, string) {
	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		log.Debug().Err(err).Msg("Charset detection failed, using windows-1252")
		return fallbackEncoding, "windows-1252"
	}

	if enc, err := lookupEncoding(res.Charset); err == nil {
		log.Debug().
			Str("charset", res.Charset).
			Int("confidence", res.Confidence).
			Msg("Charset detected")
		return enc, res.Charset
	}

	log.Debug().Str("charset", res.Charset).Msg("Detected charset not supported, using windows-1252")
	return fallbackEncoding, "windows-1252"
}

func lookupEncoding(label string) (encoding.Encoding, error) {
	if enc, err := htmlindex.Get(label); err == nil {
		return enc, nil
	}
	return htmlindex.Get(strings.ReplaceAll(label, "-", ""))
}

// decodeLegacyString decodes a single string that is not valid UTF-8.
func decodeLegacyString(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out, err := fallbackEncoding.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

// charsetReader is an xml.Decoder CharsetReader backed by the WHATWG encoding index.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := lookupEncoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
