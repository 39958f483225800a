package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20099: Submission intake errors
// 20100-20199: Artifact & compile errors
// 20200-20299: Isolation errors
// 20300-20399: Execution errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Submission Intake (20000-20099) ==========

	ValidationRejected ErrorCode = 20000
	EncodingInvalid    ErrorCode = 20001
	SubmissionTooLarge ErrorCode = 20002
	ProfileNotFound    ErrorCode = 20003

	// ========== Artifacts & Compilation (20100-20199) ==========

	ArtifactWriteFailed ErrorCode = 20100
	CompileFailed       ErrorCode = 20101
	CompileTimeout      ErrorCode = 20102

	// ========== Isolation (20200-20299) ==========

	// IsolationUnavailable is fatal and only raised at startup.
	IsolationUnavailable  ErrorCode = 20200
	IsolationSetupFailed  ErrorCode = 20201
	PolicyViolationKilled ErrorCode = 20202

	// ========== Execution (20300-20399) ==========

	ExecutionTimeout        ErrorCode = 20300
	ExecutionCrashed        ErrorCode = 20301
	ExecutionFailed         ErrorCode = 20302
	SupervisorInternalError ErrorCode = 20303
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Intake
	ValidationRejected: "Submission rejected",
	EncodingInvalid:    "Submission encoding is invalid",
	SubmissionTooLarge: "Submission is too large",
	ProfileNotFound:    "Profile not found",

	// Artifacts & compile
	ArtifactWriteFailed: "Failed to write source artifact",
	CompileFailed:       "Compilation failed",
	CompileTimeout:      "Compilation timed out",

	// Isolation
	IsolationUnavailable:  "Syscall isolation is unavailable on this host",
	IsolationSetupFailed:  "Failed to set up isolation",
	PolicyViolationKilled: "Program was killed by the syscall policy",

	// Execution
	ExecutionTimeout:        "Execution timed out",
	ExecutionCrashed:        "Program crashed",
	ExecutionFailed:         "Program exited with an error",
	SupervisorInternalError: "Supervisor internal error",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code.
// Outcomes of the submitted program itself (compile failure, crash, policy
// kill) are successful requests from the transport's point of view and map
// to 200; the envelope code carries the classification.
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == ProfileNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == IsolationUnavailable:
		return 503
	case c == SubmissionTooLarge:
		return 413
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == EncodingInvalid:
		return 400
	case c == ValidationRejected:
		return 422
	case c == CompileFailed, c == CompileTimeout,
		c == PolicyViolationKilled, c == ExecutionTimeout,
		c == ExecutionCrashed, c == ExecutionFailed:
		return 200
	default:
		return 500
	}
}
