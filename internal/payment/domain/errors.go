package domain

import "errors"

var (
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrSessionNotFound       = errors.New("session_not_found")
	ErrIntentNotFound        = errors.New("payment_intent_not_found")
	ErrGateway               = errors.New("payment_gateway_error")
)
