package model

// WelcomeEmailRequest is the body of POST /api/email/welcome.
type WelcomeEmailRequest struct {
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Data    map[string]string `json:"data"`
}

type EmailResult struct {
	Success   bool   `json:"success"`
	Mock      bool   `json:"mock,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message"`
}
