package server

import (
	"context"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/sitesmith/internal/notify"
)

// Overlay renders a build failure for display on top of the page.
func Overlay(n notify.Notification) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		when := ""
		if !n.Time.IsZero() {
			when = n.Time.Format(time.Kitchen)
		}
		_, err := io.WriteString(w, `<div class="sitesmith-overlay" data-task="`+templ.EscapeString(n.Task)+`">`+
			`<h2 class="sitesmith-overlay__title">`+templ.EscapeString(n.Title)+`</h2>`+
			`<pre class="sitesmith-overlay__message">`+templ.EscapeString(n.Message)+`</pre>`+
			`<p class="sitesmith-overlay__time">`+templ.EscapeString(when)+`</p>`+
			`</div>`)
		return err
	})
}

// NotFound is the page served for paths missing from the output directory.
func NotFound(path string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<title>Not found</title></head><body>`+
			`<h1>404</h1><p>Nothing was built at <code>`+templ.EscapeString(path)+`</code>.</p>`+
			`</body></html>`)
		return err
	})
}

const overlayStyle = `position:fixed;inset:0;z-index:2147483647;overflow:auto;` +
	`padding:2rem;background:rgba(24,24,27,.92);color:#fca5a5;font:14px/1.5 monospace`

// clientScript is served at /__livereload.js.
const clientScript = `(function () {
  if (window.__sitesmith) return;
  window.__sitesmith = true;

  var overlay = null;

  function clearOverlay() {
    if (overlay) { overlay.remove(); overlay = null; }
  }

  function showOverlay(html) {
    clearOverlay();
    overlay = document.createElement('div');
    overlay.setAttribute('style', '` + overlayStyle + `');
    overlay.innerHTML = html;
    overlay.addEventListener('click', clearOverlay);
    document.body.appendChild(overlay);
  }

  function updateCSS(target) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var found = false;
    for (var i = 0; i < links.length; i++) {
      var url = new URL(links[i].href, location.href);
      if (url.pathname === target) {
        url.searchParams.set('v', Date.now());
        links[i].href = url.toString();
        found = true;
      }
    }
    if (!found) location.reload();
  }

  function handle(message) {
    switch (message.type) {
      case 'full_reload':
        location.reload();
        break;
      case 'css_update':
        clearOverlay();
        updateCSS(message.target);
        break;
      case 'build_error':
        showOverlay(message.content);
        break;
    }
  }

  function connect() {
    var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
    var ws = new WebSocket(protocol + '//' + location.host + '` + liveReloadPath + `');
    ws.onmessage = function (event) {
      try { handle(JSON.parse(event.data)); } catch (e) {}
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }

  connect();
})();
`
