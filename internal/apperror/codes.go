package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Fatal at startup
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Pipeline error codes
const (
	// Price feeds
	CodeStaleData      Code = "STALE_DATA"
	CodeFeedPollFailed Code = "FEED_POLL_FAILED"
	CodeInvalidQuote   Code = "INVALID_QUOTE"

	// Decision stages
	CodeValidationRejected Code = "VALIDATION_REJECTED"
	CodeRiskLimitExceeded  Code = "RISK_LIMIT_EXCEEDED"
	CodeRouteBusy          Code = "ROUTE_BUSY"
	CodeRouteQuarantined   Code = "ROUTE_QUARANTINED"
	CodeExecutorSaturated  Code = "EXECUTOR_SATURATED"

	// Execution
	CodeExecutionTimeout  Code = "EXECUTION_TIMEOUT"
	CodeExecutionReverted Code = "EXECUTION_REVERTED"
	CodeExecutionFailed   Code = "EXECUTION_FAILED"
	CodeInvalidTransition Code = "INVALID_STATE_TRANSITION"

	// Blockchain/Ethereum
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeGasEstimationFailed      Code = "GAS_ESTIMATION_FAILED"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"
	CodeTransactionSignFailed    Code = "TRANSACTION_SIGN_FAILED"

	// Collaborators
	CodeScorerUnavailable  Code = "SCORER_UNAVAILABLE"
	CodeBridgeQuoteFailed  Code = "BRIDGE_QUOTE_FAILED"
	CodePersistenceFailed  Code = "PERSISTENCE_FAILED"
	CodeEventPublishFailed Code = "EVENT_PUBLISH_FAILED"
	CodeWebSocketSendError Code = "WEBSOCKET_SEND_ERROR"

	// Circuit breaker
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
