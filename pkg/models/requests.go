package models

// ConfirmJobRequest is the body of a confirmation call.
type ConfirmJobRequest struct {
	ServiceType ServiceType `json:"serviceType"`
	VoiceConfig JSON        `json:"voiceConfig"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}
