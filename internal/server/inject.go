package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/assetpipe/internal/errors"
)

// InjectBeforeBody inserts snippet before the last </body> end tag of page.
// Pages without one get the snippet appended. Tags inside comments, scripts
// and other raw text are not mistaken for the body end.
func InjectBeforeBody(page []byte, snippet string) []byte {
	if snippet == "" {
		return page
	}

	z := html.NewTokenizer(bytes.NewReader(page))
	offset, insertAt := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		size := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				insertAt = offset
			}
		}
		offset += size
	}

	if insertAt < 0 || insertAt > len(page) {
		insertAt = len(page)
	}

	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, page[:insertAt]...)
	out = append(out, snippet...)
	out = append(out, page[insertAt:]...)
	return out
}

// LiveReloadScript returns the client that connects to endpoint and applies
// css, reload and error messages. Stylesheets whose path starts with
// stylesBase are swapped in place on css messages.
func LiveReloadScript(endpoint, stylesBase string) string {
	base := "/" + strings.Trim(stylesBase, "/") + "/"
	return fmt.Sprintf(liveReloadTemplate, jsString(endpoint), jsString(base), jsString(errors.OverlayID))
}

// jsString quotes s as a JavaScript string literal that is safe inside a
// <script> element.
func jsString(s string) string {
	quoted, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(quoted)
}

const liveReloadTemplate = `<script data-assetpipe>
(function () {
  var endpoint = %s;
  var base = %s;
  var overlayId = %s;

  function removeOverlay() {
    var el = document.getElementById(overlayId);
    if (el) { el.remove(); }
  }

  function swapStyles(hrefs) {
    var old = Array.prototype.filter.call(
      document.querySelectorAll('link[rel="stylesheet"]'),
      function (link) { return new URL(link.href).pathname.indexOf(base) === 0; });
    var anchor = old.length ? old[old.length - 1] : null;
    var pending = hrefs.length;
    function done() {
      if (--pending <= 0) { old.forEach(function (link) { link.remove(); }); }
    }
    hrefs.forEach(function (href) {
      var link = document.createElement("link");
      link.rel = "stylesheet";
      link.href = "/" + href.replace(/^\/+/, "");
      link.onload = done;
      link.onerror = done;
      if (anchor) { anchor.after(link); anchor = link; } else { document.head.appendChild(link); }
    });
    if (!hrefs.length) { done(); }
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + endpoint);
    ws.onmessage = function (event) {
      var msg = JSON.parse(event.data);
      if (msg.type === "css") { removeOverlay(); swapStyles(msg.hrefs || []); }
      else if (msg.type === "reload") { location.reload(); }
      else if (msg.type === "error" && msg.content) {
        removeOverlay();
        document.body.insertAdjacentHTML("beforeend", msg.content);
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }

  connect();
})();
</script>`
