package dto

// CheckoutSessionResponse is returned when a payment session is opened.
type CheckoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}
