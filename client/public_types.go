package client

import "github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"

// Public type aliases so SDK consumers can import only the client package.
type (
	// Requests
	ChatRequest     = types.ChatRequest
	CheckoutRequest = types.CheckoutRequest
	PortalRequest   = types.PortalRequest

	// Domain entities
	Role               = types.Role
	Turn               = types.Turn
	Summary            = types.Summary
	SubscriptionStatus = types.SubscriptionStatus
	Timestamp          = types.Timestamp
	Document           = types.Document

	// Responses
	ChatResponse     = types.ChatResponse
	RedirectResponse = types.RedirectResponse
	UploadResponse   = types.UploadResponse
	HealthStatus     = types.HealthStatus
)

const (
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
)
