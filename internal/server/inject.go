package server

import (
	"bytes"
	"net/http"
	"strings"
)

const (
	liveReloadPath   = "/__livereload"
	liveReloadScript = "/__livereload.js"
	maxInjectSize    = 512 * 1024
)

var scriptTag = []byte(`<script src="` + liveReloadScript + `"></script>`)

// injectLiveReload adds the live reload client to HTML pages served by next.
func injectLiveReload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isHTMLPage(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		injector := newInjector(w)
		next.ServeHTTP(injector, r)
		injector.finalize()
	})
}

func isHTMLPage(p string) bool {
	return p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html")
}

// injector buffers an HTML response so the client script can be inserted
// before </body>. Non-200, non-HTML or oversized responses pass through
// untouched.
type injector struct {
	http.ResponseWriter
	status        int
	buffer        []byte
	headerWritten bool
	passthrough   bool
}

func newInjector(w http.ResponseWriter) *injector {
	return &injector{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader switches to passthrough for anything but 200, so partial
// content and redirects reach the client unchanged.
func (i *injector) WriteHeader(code int) {
	if i.headerWritten {
		return
	}
	i.status = code
	if i.passthrough || code != http.StatusOK {
		i.startPassthrough()
	}
}

func (i *injector) Write(data []byte) (int, error) {
	if !i.headerWritten && !i.passthrough && i.buffer == nil {
		ct := i.Header().Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "text/html") {
			i.startPassthrough()
			return i.ResponseWriter.Write(data)
		}
		i.buffer = make([]byte, 0, 16*1024)
	}

	if i.passthrough {
		return i.ResponseWriter.Write(data)
	}

	if len(i.buffer)+len(data) > maxInjectSize {
		i.startPassthrough()
		if _, err := i.ResponseWriter.Write(i.buffer); err != nil {
			return 0, err
		}
		return i.ResponseWriter.Write(data)
	}

	i.buffer = append(i.buffer, data...)
	return len(data), nil
}

func (i *injector) startPassthrough() {
	i.passthrough = true
	i.ResponseWriter.WriteHeader(i.status)
	i.headerWritten = true
}

// finalize must run after the wrapped handler returns.
func (i *injector) finalize() {
	if i.passthrough || len(i.buffer) == 0 {
		if !i.headerWritten {
			i.ResponseWriter.WriteHeader(i.status)
		}
		return
	}

	out := insertScript(i.buffer)
	i.Header().Del("Content-Length")
	i.ResponseWriter.WriteHeader(i.status)
	_, _ = i.ResponseWriter.Write(out)
}

func insertScript(page []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if idx < 0 {
		return append(append([]byte{}, page...), scriptTag...)
	}
	out := make([]byte, 0, len(page)+len(scriptTag))
	out = append(out, page[:idx]...)
	out = append(out, scriptTag...)
	return append(out, page[idx:]...)
}
