package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/resilience"
)

// isRejectedPublish reports errors caused by the message itself. Retrying the
// same document id on the same subject cannot succeed, and the broker is
// healthy, so the breaker ignores them.
func isRejectedPublish(err error) bool {
	return errors.Is(err, nats.ErrBadSubject) ||
		errors.Is(err, nats.ErrMaxPayload) ||
		errors.Is(err, nats.ErrInvalidMsg)
}

func isAuthFailure(err error) bool {
	return errors.Is(err, nats.ErrAuthorization) ||
		errors.Is(err, nats.ErrAuthExpired) ||
		errors.Is(err, nats.ErrAuthRevoked) ||
		errors.Is(err, nats.ErrPermissionViolation)
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case isRejectedPublish(err):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case isAuthFailure(err):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	case resilience.IsCircuitOpen(err),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

// wrapPublishError gives a failed processing dispatch its domain kind:
// broker credentials map like provider credentials, a rejected message is
// invalid input, and transient broker trouble is temporary.
func wrapPublishError(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	switch {
	case isAuthFailure(err):
		return domain.WrapError(domain.ErrProviderUnavailable, "dispatch document", err)
	case isRejectedPublish(err):
		return domain.WrapError(domain.ErrInvalidInput, "dispatch document", err)
	case classifyNATSError(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, "dispatch document", err)
	default:
		return err
	}
}
