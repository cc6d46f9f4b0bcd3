package gateway

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Instrumenter weaves engagement tracking into outbound HTML. Several
// signals are layered because mail clients strip them unevenly: images
// (pixel), CSS backgrounds, media queries, and rewritten links each survive
// a different subset of clients.
type Instrumenter struct {
	baseURL string
}

// NewInstrumenter creates an instrumenter emitting links under baseURL.
func NewInstrumenter(baseURL string) *Instrumenter {
	return &Instrumenter{baseURL: strings.TrimRight(baseURL, "/")}
}

// OpenURL is the tracking pixel endpoint for a message.
func (i *Instrumenter) OpenURL(messageID string) string {
	return fmt.Sprintf("%s/track/open/%s", i.baseURL, url.PathEscape(messageID))
}

// ClickURL wraps a destination behind the click-tracking redirect.
func (i *Instrumenter) ClickURL(messageID, target string) string {
	return fmt.Sprintf("%s/track/click/%s?url=%s",
		i.baseURL, url.PathEscape(messageID), url.QueryEscape(target))
}

// ViewOnlineURL is the hosted copy of the message.
func (i *Instrumenter) ViewOnlineURL(messageID string) string {
	return fmt.Sprintf("%s/track/view/%s", i.baseURL, url.PathEscape(messageID))
}

// FeedbackURL records a yes/no response.
func (i *Instrumenter) FeedbackURL(messageID, response string) string {
	return fmt.Sprintf("%s/track/feedback/%s?response=%s",
		i.baseURL, url.PathEscape(messageID), url.QueryEscape(response))
}

var hrefRegex = regexp.MustCompile(`href="(https?://[^"]+)"`)

// Instrument rewires the HTML body for tracking: links route through the
// click redirect, and open signals (pixel, CSS background, media query),
// a view-online header, and feedback buttons are appended.
func (i *Instrumenter) Instrument(html, messageID string) string {
	// Rewrite links first so the injected tracking markup keeps its own URLs
	html = hrefRegex.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefRegex.FindStringSubmatch(match)[1]
		if strings.HasPrefix(target, i.baseURL+"/track/") {
			return match
		}
		return fmt.Sprintf(`href="%s"`, i.ClickURL(messageID, target))
	})

	var b strings.Builder

	b.WriteString(`<div style="text-align:center;font-size:11px;color:#999;padding:4px;">`)
	b.WriteString(fmt.Sprintf(`<a href="%s" style="color:#999;">View this email in your browser</a>`, i.ViewOnlineURL(messageID)))
	b.WriteString("</div>\n")

	b.WriteString(fmt.Sprintf(`<style>@media only screen { .lt-o { background-image: url('%s'); } }</style>`, i.OpenURL(messageID)))
	b.WriteString("\n")

	b.WriteString(html)
	b.WriteString("\n")

	b.WriteString(`<div style="margin-top:16px;text-align:center;font-size:12px;color:#666;">`)
	b.WriteString("Was this email useful? ")
	b.WriteString(fmt.Sprintf(`<a href="%s">Yes</a> &middot; <a href="%s">No</a>`,
		i.FeedbackURL(messageID, "yes"), i.FeedbackURL(messageID, "no")))
	b.WriteString("</div>\n")

	b.WriteString(fmt.Sprintf(`<div class="lt-o" style="background-image:url('%s');width:1px;height:1px;"></div>`, i.OpenURL(messageID)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none;" alt="">`, i.OpenURL(messageID)))

	return b.String()
}
