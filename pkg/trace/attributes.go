package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Session attributes
	AttrSessionID    = "session.id"
	AttrSessionState = "session.state"

	// Provider attributes
	AttrProviderName  = "provider.name"
	AttrProviderModel = "provider.model"

	// Connection attributes
	AttrConnectionID       = "connection.id"
	AttrConnectionEndpoint = "connection.endpoint"

	// Error attributes
	AttrErrorKind    = "error.kind"
	AttrErrorMessage = "error.message"
)

// Helper functions to create common attributes

// SessionAttrs creates attributes for session information
func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// ProviderAttrs creates attributes for provider information
func ProviderAttrs(provider string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProviderName, provider),
	}
}

// ConnectionAttrs creates attributes for caller connection information
func ConnectionAttrs(connID, endpoint string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrConnectionID, connID),
		attribute.String(AttrConnectionEndpoint, endpoint),
	}
}

// ErrorAttrs creates attributes for errors
func ErrorAttrs(kind, message string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorKind, kind),
		attribute.String(AttrErrorMessage, message),
	}
}
