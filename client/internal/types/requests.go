package types

// ------------------------------
// Request Types
// ------------------------------

// ChatRequest is the body of POST /api/chat/<topic>.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// CheckoutRequest is the body of POST /api/subscription/create-checkout-session.
type CheckoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// PortalRequest is the body of POST /api/subscription/create-portal-session.
type PortalRequest struct {
	ReturnURL string `json:"return_url"`
}
