package errors

import (
	"context"
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

var throttlingCodes = map[string]struct{}{
	"ThrottlingException":                    {},
	"Throttling":                             {},
	"ThrottledException":                     {},
	"TooManyRequestsException":               {},
	"ProvisionedThroughputExceededException": {},
	"RequestLimitExceeded":                   {},
	"RequestThrottled":                       {},
	"SlowDown":                               {},
	"ServiceQuotaExceededException":          {},
}

var unavailableCodes = map[string]struct{}{
	"ServiceUnavailable":           {},
	"ServiceUnavailableException":  {},
	"InternalServerError":          {},
	"InternalServerException":      {},
	"InternalFailure":              {},
	"InternalError":                {},
	"ModelNotReadyException":       {},
	"ModelTimeoutException":        {},
	"RequestTimeout":               {},
	"RequestTimeoutException":      {},
	"TransactionConflictException": {},
}

var notFoundCodes = map[string]struct{}{
	"NoSuchKey":                 {},
	"NotFound":                  {},
	"NoSuchBucket":              {},
	"ResourceNotFoundException": {},
	"StateMachineDoesNotExist":  {},
	"AWS.SimpleQueueService.NonExistentQueue": {},
	"QueueDoesNotExist":                       {},
}

var validationCodes = map[string]struct{}{
	"ValidationException":                      {},
	"InvalidParameterValue":                    {},
	"InvalidParameterValueException":           {},
	"InvalidArn":                               {},
	"InvalidExecutionInput":                    {},
	"ConditionalCheckFailedException":          {},
	"AccessDenied":                             {},
	"AccessDeniedException":                    {},
	"ItemCollectionSizeLimitExceededException": {},
}

// MapAWSError maps AWS SDK errors to AppError instances by API error code and HTTP status.
// Unrecognized errors are returned unchanged.
func MapAWSError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "aws call timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "aws call canceled", Cause: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := throttlingCodes[code]; ok {
			return &AppError{Code: ErrCodeThrottled, Message: "aws request throttled", Cause: err}
		}
		if _, ok := unavailableCodes[code]; ok {
			return &AppError{Code: ErrCodeUnavailable, Message: "aws service unavailable", Cause: err}
		}
		if _, ok := notFoundCodes[code]; ok {
			return &AppError{Code: ErrCodeNotFound, Message: "aws resource not found", Cause: err}
		}
		if _, ok := validationCodes[code]; ok {
			return &AppError{Code: ErrCodeValidation, Message: "aws request rejected", Cause: err}
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return mapHTTPStatus(respErr.HTTPStatusCode(), err)
	}
	return err
}

// MapHTTPStatus maps a raw HTTP status from a non-SDK AWS endpoint to an AppError.
func MapHTTPStatus(status int, err error) error {
	return mapHTTPStatus(status, err)
}

func mapHTTPStatus(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &AppError{Code: ErrCodeThrottled, Message: "request throttled", Cause: err}
	case status == http.StatusNotFound:
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: err}
	case status == http.StatusBadRequest, status == http.StatusForbidden, status == http.StatusUnauthorized:
		return &AppError{Code: ErrCodeValidation, Message: "request rejected", Cause: err}
	case status >= 500:
		return &AppError{Code: ErrCodeUnavailable, Message: "service unavailable", Cause: err}
	default:
		return err
	}
}
