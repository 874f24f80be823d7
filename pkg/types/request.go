package types

// SendMessageRequest is the body of POST /send-message. It is accepted as
// JSON, urlencoded or multipart form data.
type SendMessageRequest struct {
	ChannelID string `json:"channelId" form:"channelId"`
	Message   string `json:"message" form:"message"`
}

// SendDMRequest is the body of POST /send-dm.
type SendDMRequest struct {
	UserID  string `json:"userId" form:"userId"`
	Message string `json:"message" form:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Gateway string `json:"gateway"`
}
