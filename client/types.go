package client

// AnalyzeRequest is the body of POST /analyze and of each /ws frame.
type AnalyzeRequest struct {
	Message string `json:"message"`
	Locale  string `json:"locale,omitempty"`
}

// AnalyzeResponse carries the wire name of the chosen action and its
// user-facing description.
type AnalyzeResponse struct {
	Action      string `json:"action"`
	Description string `json:"description"`
}

// ErrorResponse is the classifier's error shape, e.g. {"error":"missing message"}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// errorEnvelope is the structured error shape some gateways return.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// wsReply is one /ws answer: either a classification or an error.
type wsReply struct {
	AnalyzeResponse
	Error string `json:"error,omitempty"`
}
