// Package httputil is the JSON plumbing shared by every handler: response
// envelopes, the StatusError mapping that lets service errors choose their
// own HTTP status, and request body decoding.
package httputil
