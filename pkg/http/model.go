package http

// APIResponse wraps error payloads that are not part of the charting
// client protocol, such as validation failures.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"start"`
	Message string                 `json:"message,omitempty" example:"start is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
