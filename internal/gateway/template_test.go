package gateway

import (
	"strings"
	"testing"
)

func TestInstrumentWeavesTracking(t *testing.T) {
	i := NewInstrumenter("https://crm.example.com/")
	html := `<p>Hello</p><a href="https://shop.example.com/sale">Sale</a>`

	out := i.Instrument(html, "msg-1")

	if !strings.Contains(out, `<img src="https://crm.example.com/track/open/msg-1"`) {
		t.Error("missing open pixel")
	}
	if !strings.Contains(out, `background-image:url('https://crm.example.com/track/open/msg-1')`) {
		t.Error("missing CSS background signal")
	}
	if !strings.Contains(out, "@media only screen") {
		t.Error("missing media-query signal")
	}
	if !strings.Contains(out, "/track/view/msg-1") {
		t.Error("missing view-online link")
	}
	if !strings.Contains(out, "/track/feedback/msg-1?response=yes") ||
		!strings.Contains(out, "/track/feedback/msg-1?response=no") {
		t.Error("missing feedback buttons")
	}
	if strings.Contains(out, `href="https://shop.example.com/sale"`) {
		t.Error("destination link was not rewritten")
	}
	if !strings.Contains(out, "/track/click/msg-1?url=https%3A%2F%2Fshop.example.com%2Fsale") {
		t.Error("missing click redirect")
	}
}

func TestInstrumentLeavesTrackingLinksAlone(t *testing.T) {
	i := NewInstrumenter("https://crm.example.com")
	html := `<a href="https://crm.example.com/track/view/other">view</a>`

	out := i.Instrument(html, "msg-1")
	if !strings.Contains(out, `href="https://crm.example.com/track/view/other"`) {
		t.Error("tracking link was double-wrapped")
	}
}

func TestInstrumentEscapesMessageID(t *testing.T) {
	i := NewInstrumenter("https://crm.example.com")
	out := i.Instrument("<p>x</p>", "msg/../1")
	if strings.Contains(out, "/track/open/msg/../1") {
		t.Error("message id was not path-escaped")
	}
}
