package forge

import (
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

var (
	// ErrForgeUnsupported signals that the forge type is not supported.
	ErrForgeUnsupported = errors.ConfigError("unsupported forge type").Fatal().Build()

	// ErrAuthRequired signals that a token is required for a forge client.
	ErrAuthRequired = errors.AuthError("token authentication required for forge client").Build()

	// ErrInvalidPayload signals that a webhook payload is invalid.
	ErrInvalidPayload = errors.ValidationError("invalid webhook payload").Build()

	// ErrUnsupportedEvent signals a webhook event type docgate does not act on.
	ErrUnsupportedEvent = errors.ValidationError("unsupported webhook event type").WithSeverity(errors.SeverityInfo).Build()

	// ErrCircuitOpen signals that recent forge calls failed and calls are
	// short-circuited until the cooldown passes.
	ErrCircuitOpen = errors.NetworkError("forge circuit breaker open").Build()
)
