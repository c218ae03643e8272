package webseed

import (
	"fmt"
	"net/url"
	"strings"
)

type PathEscaper func(pathComps []string) string

// Escapes path name components suitable for appending to a webseed URL. This
// works for converting S3 object keys to URLs too.
//
// Contrary to the name, this actually does a QueryEscape, rather than a
// PathEscape. This works better with most S3 providers.
func EscapePath(pathComps []string) string {
	return defaultPathEscaper(pathComps)
}

func defaultPathEscaper(pathComps []string) string {
	var ret []string
	for _, comp := range pathComps {
		esc := url.PathEscape(comp)
		// S3 incorrectly escapes + in paths to spaces, so we add an extra
		// encoding for that. This seems to be handled correctly regardless of
		// whether an endpoint uses query or path escaping.
		esc = strings.ReplaceAll(esc, "+", "%2B")
		ret = append(ret, esc)
	}
	return strings.Join(ret, "/")
}

// Returns the fetch URL for a file per BEP 19. The file's subpath is
// appended, escaped per component, only when the base URL is a directory.
func urlForFile(baseURL, subpath string, pathEscaper PathEscaper) string {
	if !strings.HasSuffix(baseURL, "/") || subpath == "" {
		return baseURL
	}
	if pathEscaper == nil {
		pathEscaper = defaultPathEscaper
	}
	return baseURL + pathEscaper(strings.Split(subpath, "/"))
}

// ByteRange is an inclusive HTTP byte range within one file.
type ByteRange struct {
	Start, End int64
}

func (me ByteRange) Length() int64 {
	return me.End - me.Start + 1
}

// Value for a Range request header.
func (me ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", me.Start, me.End)
}
