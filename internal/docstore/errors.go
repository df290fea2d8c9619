package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
)

// errContention marks a transaction attempt that lost an optimistic race.
var errContention = errors.New("docstore: transaction contention")

var (
	permissionCodes = map[string]bool{
		"AccessDeniedException":       true,
		"UnrecognizedClientException": true,
		"MissingAuthenticationToken":  true,
		"InvalidSignatureException":   true,
		"ExpiredTokenException":       true,
	}
	quotaCodes = map[string]bool{
		"ProvisionedThroughputExceededException": true,
		"ThrottlingException":                    true,
		"RequestLimitExceeded":                   true,
		"LimitExceededException":                 true,
		"ThrottlingError":                        true,
		"ProvisionedThroughputExceeded":          true,
	}
	unavailableCodes = map[string]bool{
		"InternalServerError":            true,
		"ServiceUnavailable":             true,
		"ServiceUnavailableException":    true,
		"RequestTimeout":                 true,
		"RequestTimeoutException":        true,
		"TransactionInProgressException": true,
		"TransactionConflictException":   true,
	}
)

// classify maps an SDK error onto the error taxonomy. Context errors pass
// through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return &ConditionFailedError{Current: ccf.Item}
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %w", apperr.ErrBackendUnavailable, op, err)
	}
	return classifyCode(op, apiErr.ErrorCode(), err)
}

func classifyCode(op, code string, err error) error {
	switch {
	case permissionCodes[code]:
		return fmt.Errorf("%w: %s: %w", apperr.ErrPermissionDenied, op, err)
	case quotaCodes[code]:
		return fmt.Errorf("%w: %s: %w", apperr.ErrQuotaExceeded, op, err)
	case unavailableCodes[code]:
		return fmt.Errorf("%w: %s: %w", apperr.ErrBackendUnavailable, op, err)
	}
	return &apperr.UnexpectedError{Details: op, Err: err}
}

// classifyCommit distinguishes lost races, which are retried, from every
// other reason a transaction may be cancelled.
func classifyCommit(err error) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "TransactionConflictException" {
			return fmt.Errorf("%w: %w", errContention, err)
		}
		return classify("transact write items", err)
	}

	contended := false
	for _, r := range tce.CancellationReasons {
		code := ""
		if r.Code != nil {
			code = *r.Code
		}
		switch code {
		case "", "None":
		case "ConditionalCheckFailed", "TransactionConflict":
			contended = true
		default:
			return classifyCode("transact write items", code, err)
		}
	}
	if contended || len(tce.CancellationReasons) == 0 {
		return fmt.Errorf("%w: %w", errContention, err)
	}
	return &apperr.UnexpectedError{Details: "transact write items", Err: err}
}

func missingIndex(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ValidationException" {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "index")
}
