package errors

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// OverlayID is the element id of the overlay, used by the live reload client
// to remove it once a rebuild succeeds.
const OverlayID = "assetpipe-error-overlay"

// Overlay renders the collected errors as a fixed full-page panel. It renders
// nothing when the collector is empty.
func (ec *ErrorCollector) Overlay() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if !ec.HasErrors() {
			return nil
		}

		var sb strings.Builder
		sb.WriteString(`<div id="` + OverlayID + `" style="position:fixed;inset:0;background:rgba(0,0,0,.85);color:#fff;`)
		sb.WriteString(`font:14px Menlo,Monaco,monospace;z-index:99999;padding:20px;overflow:auto">`)
		sb.WriteString(`<div style="max-width:1000px;margin:0 auto">`)
		sb.WriteString(`<h2 style="margin:0 0 20px;color:#ff6b6b">Build Errors</h2>`)

		for _, err := range ec.GetErrors() {
			color := "#ff6b6b"
			switch err.Severity {
			case ErrorSeverityWarning:
				color = "#feca57"
			case ErrorSeverityInfo:
				color = "#48dbfb"
			}

			fmt.Fprintf(&sb,
				`<div style="background:#2d3748;padding:15px;margin-bottom:15px;border-left:4px solid %s">`+
					`<div style="color:%s;font-weight:bold">%s</div>`+
					`<pre style="white-space:pre-wrap;margin:8px 0">%s</pre>`+
					`<div style="color:#a0aec0;font-size:12px">%s</div></div>`,
				color, color,
				templ.EscapeString(err.Severity.String()),
				templ.EscapeString(err.Message),
				templ.EscapeString(err.Location()),
			)
		}

		for _, err := range ec.otherFailures() {
			fmt.Fprintf(&sb,
				`<div style="background:#2d3748;padding:15px;margin-bottom:15px;border-left:4px solid #ff6b6b">`+
					`<pre style="white-space:pre-wrap;margin:0">%s</pre></div>`,
				templ.EscapeString(err.Error()),
			)
		}

		sb.WriteString(`</div></div>`)

		_, err := io.WriteString(w, sb.String())
		return err
	})
}

// OverlayHTML renders the overlay to a string.
func (ec *ErrorCollector) OverlayHTML(ctx context.Context) string {
	var sb strings.Builder
	if err := ec.Overlay().Render(ctx, &sb); err != nil {
		return ""
	}
	return sb.String()
}
