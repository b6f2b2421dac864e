package engine

import (
	"bytes"
	"catalog-validation/pkg/httpclient"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "iso-8859-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// loadError carries the report error a failed load turns into.
type loadError struct {
	reportType string
	note       string
}

func (e *loadError) Error() string {
	return e.reportType + ": " + e.note
}

func (b *Builtin) load(ctx context.Context, source Source, opts Options) ([]byte, error) {
	if source.Path != "" {
		data, err := os.ReadFile(source.Path)
		if err != nil {
			return nil, &loadError{reportType: ErrorTypeSource, note: err.Error()}
		}
		return data, nil
	}

	u, err := url.Parse(source.URL)
	if err != nil || u.Host == "" {
		return nil, &loadError{reportType: ErrorTypeScheme, note: fmt.Sprintf("invalid url %q", source.URL)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &loadError{reportType: ErrorTypeScheme, note: fmt.Sprintf("scheme %q is not supported", u.Scheme)}
	}

	if err := b.hosts.Wait(ctx, u.Host); err != nil {
		return nil, err
	}

	client := b.newClient(httpclient.Options{Timeout: b.timeout, Proxy: opts.Proxy})
	headers := map[string]string{"Accept": "*/*"}
	for k, v := range source.Headers {
		headers[k] = v
	}

	resp, err := client.Get(ctx, source.URL, nil, headers, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &loadError{reportType: ErrorTypeSource, note: err.Error()}
	}
	if resp.IsError() {
		return nil, &loadError{reportType: ErrorTypeSource, note: fmt.Sprintf("%d error for url: %s", resp.StatusCode, source.URL)}
	}
	return resp.Body, nil
}

// decodeText converts data to UTF-8 using the named encoding.
func decodeText(data []byte, name string) ([]byte, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", EncodingUTF8, "utf8", "utf-8-sig":
		data = bytes.TrimPrefix(data, utf8BOM)
		if pos := invalidUTF8Position(data); pos >= 0 {
			return nil, fmt.Errorf("'utf-8' codec can't decode byte 0x%02x in position %d: invalid start byte", data[pos], pos)
		}
		return data, nil
	case EncodingLatin1, "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Bytes(data)
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown encoding: %s", name)
	}
	return decodeWith(enc, data)
}

func decodeWith(enc encoding.Encoding, data []byte) ([]byte, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func invalidUTF8Position(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}
