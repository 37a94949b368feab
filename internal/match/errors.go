package match

import (
	dErrors "eligibility/pkg/domain-errors"
)

// Verification method tags carried on match errors so callers can tell which
// pipeline rejected them.
const (
	MethodStandard        = "standard"
	MethodAlternate       = "alternate"
	MethodClientSpecific  = "client_specific"
	MethodNoDOB           = "no_dob"
	MethodOvereligibility = "overeligibility"
	MethodBasic           = "basic"
	MethodHealthPlan      = "healthplan"
	MethodMemberID        = "member_id"
	MethodOrgIdentity     = "org_identity"
	MethodWallet          = "wallet"
)

func missError(method, message string) error {
	return dErrors.New(dErrors.CodeNotFound, message).WithMethod(method)
}

func multipleError(method string) error {
	return dErrors.New(dErrors.CodeConflict, "matching records found in multiple organizations").WithMethod(method)
}

func validationError(method, message string, fields ...dErrors.FieldViolation) error {
	return dErrors.Validation(message, fields...).WithMethod(method)
}

func configurationError(method, message string) error {
	return dErrors.New(dErrors.CodeUnimplemented, message).WithMethod(method)
}

func upstreamError(method string, err error) error {
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "client-specific verifier failed").WithMethod(method)
}
