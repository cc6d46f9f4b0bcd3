package domain

// EmailMessage is a single outbound message handed to a delivery provider.
// MessageID, when set, is woven into the HTML for open/click tracking.
type EmailMessage struct {
	To        string
	ToName    string
	From      string
	FromName  string
	Subject   string
	HTML      string
	Text      string
	MessageID string
	Headers   map[string]string
}

// SendResult is the outcome of one provider attempt. Success=false with a
// nil error means the provider rejected the message (a business failure,
// not a transport one).
type SendResult struct {
	Success    bool
	Provider   Provider
	ProviderID string
	StatusCode int
	Message    string
}
