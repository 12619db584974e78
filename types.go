package recordapi

// loginRequest represents the JSON request for POST /api/authenticate
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse represents the JSON response for a successful login
type tokenResponse struct {
	Token string `json:"token"`
}

// messageResponse is the body shape for simple error responses
type messageResponse struct {
	Message string `json:"message"`
}

// validationResponse is the body shape for 422 responses
type validationResponse struct {
	Errors []FieldError `json:"errors"`
}

// recordRequest represents the JSON body for record create and update.
// Name is a pointer and Age is untyped so validation can distinguish a
// missing field from a present-but-invalid one.
type recordRequest struct {
	Name *string `json:"name"`
	Age  any     `json:"age"`
}
