package verification

import "errors"

var (
	ErrCreditNotFound        = errors.New("credit not found")
	ErrMethodologyNotFound   = errors.New("methodology not found")
	ErrMethodologyInactive   = errors.New("methodology is inactive")
	ErrDuplicateVerification = errors.New("verification already exists")
	ErrVerificationNotFound  = errors.New("verification not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrNotVerifiable         = errors.New("verification outcome does not support approval")
	ErrInvalidMethodology    = errors.New("invalid methodology")
	ErrInvalidEvidence       = errors.New("invalid evidence")
	ErrInvalidRequest        = errors.New("invalid request")
)
