package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	CodeStaleData:      "Price data is older than the staleness bound",
	CodeFeedPollFailed: "Price feed poll failed",
	CodeInvalidQuote:   "Invalid quote data",

	CodeValidationRejected: "Opportunity rejected by validation",
	CodeRiskLimitExceeded:  "Risk limit exceeded",
	CodeRouteBusy:          "An execution is already in flight for this route",
	CodeRouteQuarantined:   "Route is quarantined after repeated failures",
	CodeExecutorSaturated:  "Execution pool is saturated",

	CodeExecutionTimeout:  "Execution confirmation timed out",
	CodeExecutionReverted: "Transaction reverted on-chain",
	CodeExecutionFailed:   "Execution failed",
	CodeInvalidTransition: "Invalid execution state transition",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeGasEstimationFailed:      "Gas estimation failed",
	CodeContractCallFailed:       "Smart contract call failed",
	CodeTransactionSignFailed:    "Failed to sign transaction",

	CodeScorerUnavailable:  "Scoring service unavailable",
	CodeBridgeQuoteFailed:  "Bridge quote unavailable",
	CodePersistenceFailed:  "Failed to persist record",
	CodeEventPublishFailed: "Failed to publish event",
	CodeWebSocketSendError: "Failed to send WebSocket message",

	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
