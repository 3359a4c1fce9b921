package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/registry"

	"gorm.io/gorm"
)

// ErrorType represents different types of errors
type ErrorType string

const (
	ErrorTypeTransient  ErrorType = "transient"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeAuth       ErrorType = "authentication"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeCircuit    ErrorType = "circuit_breaker"
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeCanceled   ErrorType = "canceled"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// ErrorSeverity represents error severity levels
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// ClassifiedError represents an error with classification information
type ClassifiedError struct {
	OriginalError error
	Type          ErrorType
	Severity      ErrorSeverity
	StatusCode    int
	Message       string
	Retryable     bool
	Context       map[string]interface{}
	Timestamp     time.Time
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Severity, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.OriginalError
}

// ErrorCircuitBreakerState represents the state of a circuit breaker
type ErrorCircuitBreakerState string

const (
	ErrorCircuitBreakerClosed   ErrorCircuitBreakerState = "closed"
	ErrorCircuitBreakerOpen     ErrorCircuitBreakerState = "open"
	ErrorCircuitBreakerHalfOpen ErrorCircuitBreakerState = "half_open"
)

// ErrorCircuitBreaker implements the circuit breaker pattern
type ErrorCircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	state         ErrorCircuitBreakerState
	failures      int
	nextAttempt   time.Time
	mutex         sync.RWMutex
	onStateChange func(name string, from, to ErrorCircuitBreakerState)
}

// NewErrorCircuitBreaker creates a new circuit breaker
func NewErrorCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *ErrorCircuitBreaker {
	return &ErrorCircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        ErrorCircuitBreakerClosed,
	}
}

// Execute executes a function with circuit breaker protection
func (cb *ErrorCircuitBreaker) Execute(fn func() error) error {
	if !cb.canExecute() {
		return &ClassifiedError{
			OriginalError: errors.New("circuit breaker is open"),
			Type:          ErrorTypeCircuit,
			Severity:      SeverityHigh,
			StatusCode:    http.StatusServiceUnavailable,
			Message:       fmt.Sprintf("Circuit breaker '%s' is open", cb.name),
			Timestamp:     time.Now(),
		}
	}

	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *ErrorCircuitBreaker) canExecute() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case ErrorCircuitBreakerOpen:
		if time.Now().After(cb.nextAttempt) {
			cb.setState(ErrorCircuitBreakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *ErrorCircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++

	switch cb.state {
	case ErrorCircuitBreakerClosed:
		if cb.failures >= cb.maxFailures {
			cb.setState(ErrorCircuitBreakerOpen)
			cb.nextAttempt = time.Now().Add(cb.resetTimeout)
		}
	case ErrorCircuitBreakerHalfOpen:
		cb.setState(ErrorCircuitBreakerOpen)
		cb.nextAttempt = time.Now().Add(cb.resetTimeout)
	}
}

func (cb *ErrorCircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	if cb.state != ErrorCircuitBreakerClosed {
		cb.setState(ErrorCircuitBreakerClosed)
	}
}

func (cb *ErrorCircuitBreaker) setState(newState ErrorCircuitBreakerState) {
	oldState := cb.state
	cb.state = newState

	if cb.onStateChange != nil && oldState != newState {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *ErrorCircuitBreaker) GetState() ErrorCircuitBreakerState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// GetFailures returns the current failure count
func (cb *ErrorCircuitBreaker) GetFailures() int {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.failures
}

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []ErrorType
	Jitter          bool
}

// DefaultRetryPolicy returns the policy used for reference lookups
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []ErrorType{
			ErrorTypeTransient,
			ErrorTypeTimeout,
			ErrorTypeConnection,
		},
		Jitter: true,
	}
}

// ErrorHandler classifies infrastructure errors and guards calls with retries and circuit breakers
type ErrorHandler struct {
	logger          *logger.Logger
	circuitBreakers map[string]*ErrorCircuitBreaker
	retryPolicy     *RetryPolicy
	mutex           sync.RWMutex

	notificationHandlers []func(*ClassifiedError)
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *logger.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:          logger,
		circuitBreakers: make(map[string]*ErrorCircuitBreaker),
		retryPolicy:     DefaultRetryPolicy(),
	}
}

// ClassifyError classifies an error based on its type and context
func (eh *ErrorHandler) ClassifyError(err error, context map[string]interface{}) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classifiedErr *ClassifiedError
	if errors.As(err, &classifiedErr) {
		return classifiedErr
	}

	classified := &ClassifiedError{
		OriginalError: err,
		Context:       context,
		Timestamp:     time.Now(),
	}

	if !eh.classifyBySentinel(classified) {
		eh.classifyByContent(classified)
	}
	eh.classifyByHTTPStatus(classified)
	eh.classifyBySeverity(classified)

	return classified
}

// classifyBySentinel classifies well-known error values
func (eh *ErrorHandler) classifyBySentinel(err *ClassifiedError) bool {
	switch {
	case errors.Is(err.OriginalError, context.DeadlineExceeded):
		err.Type = ErrorTypeTimeout
		err.StatusCode = http.StatusGatewayTimeout
		err.Retryable = true
		err.Message = "Request timeout"
	case errors.Is(err.OriginalError, context.Canceled):
		err.Type = ErrorTypeCanceled
		err.StatusCode = http.StatusRequestTimeout
		err.Message = "Request canceled"
	case errors.Is(err.OriginalError, gorm.ErrRecordNotFound), errors.Is(err.OriginalError, ErrReferenceNotFound),
		errors.Is(err.OriginalError, registry.ErrUnknownEntity):
		err.Type = ErrorTypeNotFound
		err.StatusCode = http.StatusNotFound
		err.Message = "Record not found"
	case errors.Is(err.OriginalError, gorm.ErrDuplicatedKey):
		err.Type = ErrorTypeConflict
		err.StatusCode = http.StatusConflict
		err.Message = "Duplicate record"
	case errors.Is(err.OriginalError, ErrInvalidToken), errors.Is(err.OriginalError, ErrTokenExpired):
		err.Type = ErrorTypeAuth
		err.StatusCode = http.StatusUnauthorized
		err.Message = "Authentication failed"
	case errors.Is(err.OriginalError, ErrMissingContext):
		err.Type = ErrorTypeValidation
		err.StatusCode = http.StatusBadRequest
		err.Message = "Missing required context"
	case errors.Is(err.OriginalError, ErrInvalidRequest):
		err.Type = ErrorTypeValidation
		err.StatusCode = http.StatusBadRequest
		err.Message = "Invalid request"
	default:
		return false
	}
	return true
}

// classifyByContent classifies error based on error message content
func (eh *ErrorHandler) classifyByContent(err *ClassifiedError) {
	errMsg := strings.ToLower(err.OriginalError.Error())

	switch {
	case containsAny(errMsg, "timeout", "deadline exceeded"):
		err.Type = ErrorTypeTimeout
		err.StatusCode = http.StatusGatewayTimeout
		err.Retryable = true
		err.Message = "Request timeout"

	case containsAny(errMsg, "connection refused", "connection reset", "no such host", "network unreachable", "broken pipe"):
		err.Type = ErrorTypeConnection
		err.StatusCode = http.StatusBadGateway
		err.Retryable = true
		err.Message = "Connection error"

	case containsAny(errMsg, "unauthorized", "authentication", "invalid token"):
		err.Type = ErrorTypeAuth
		err.StatusCode = http.StatusUnauthorized
		err.Message = "Authentication failed"

	case containsAny(errMsg, "rate limit", "too many requests"):
		err.Type = ErrorTypeRateLimit
		err.StatusCode = http.StatusTooManyRequests
		err.Retryable = true
		err.Message = "Rate limit exceeded"

	case containsAny(errMsg, "duplicate key", "unique constraint", "sqlstate 23505"):
		err.Type = ErrorTypeConflict
		err.StatusCode = http.StatusConflict
		err.Message = "Duplicate record"

	case containsAny(errMsg, "violates not-null", "violates foreign key", "invalid input syntax", "sqlstate 23502", "sqlstate 23503", "sqlstate 22"):
		err.Type = ErrorTypeValidation
		err.StatusCode = http.StatusUnprocessableEntity
		err.Message = "Record rejected by the database"

	case containsAny(errMsg, "validation", "invalid input", "bad request"):
		err.Type = ErrorTypeValidation
		err.StatusCode = http.StatusBadRequest
		err.Message = "Validation error"

	case containsAny(errMsg, "circuit breaker"):
		err.Type = ErrorTypeCircuit
		err.StatusCode = http.StatusServiceUnavailable
		err.Message = "Circuit breaker open"

	default:
		err.Type = ErrorTypeUnknown
		err.StatusCode = http.StatusInternalServerError
		err.Message = "Unknown error"
	}
}

// classifyByHTTPStatus classifies error based on HTTP status code from context
func (eh *ErrorHandler) classifyByHTTPStatus(err *ClassifiedError) {
	statusCode, ok := err.Context["status_code"].(int)
	if !ok {
		return
	}
	err.StatusCode = statusCode

	switch {
	case statusCode >= 500 && statusCode < 600:
		err.Type = ErrorTypeTransient
		err.Retryable = true
		err.Message = fmt.Sprintf("Server error (HTTP %d)", statusCode)

	case statusCode == http.StatusTooManyRequests:
		err.Type = ErrorTypeRateLimit
		err.Retryable = true
		err.Message = "Rate limit exceeded"

	case statusCode == http.StatusRequestTimeout:
		err.Type = ErrorTypeTimeout
		err.Retryable = true
		err.Message = "Request timeout"

	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		err.Type = ErrorTypeAuth
		err.Retryable = false
		err.Message = fmt.Sprintf("Not authorized (HTTP %d)", statusCode)

	case statusCode == http.StatusNotFound:
		err.Type = ErrorTypeNotFound
		err.Retryable = false
		err.Message = "Not found"

	case statusCode >= 400 && statusCode < 500:
		err.Type = ErrorTypeValidation
		err.Retryable = false
		err.Message = fmt.Sprintf("Client error (HTTP %d)", statusCode)
	}
}

// classifyBySeverity determines error severity
func (eh *ErrorHandler) classifyBySeverity(err *ClassifiedError) {
	switch err.Type {
	case ErrorTypeAuth, ErrorTypeValidation, ErrorTypeConflict, ErrorTypeNotFound:
		err.Severity = SeverityMedium
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeConnection, ErrorTypeCanceled:
		err.Severity = SeverityLow
	case ErrorTypeCircuit:
		err.Severity = SeverityHigh
	default:
		if err.StatusCode >= 500 {
			err.Severity = SeverityHigh
		} else {
			err.Severity = SeverityMedium
		}
	}
}

// ExecuteWithRetry executes a function with retry logic
func (eh *ErrorHandler) ExecuteWithRetry(ctx context.Context, operation func() error, operationName string) error {
	eh.mutex.RLock()
	policy := eh.retryPolicy
	eh.mutex.RUnlock()

	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		classified := eh.ClassifyError(err, map[string]interface{}{
			"operation": operationName,
			"attempt":   attempt + 1,
		})
		lastErr = classified

		if !isRetryable(policy, classified) {
			return classified
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := calculateDelay(policy, attempt)

		eh.logger.WithError(classified.OriginalError).
			WithField("operation", operationName).
			WithField("attempt", attempt+1).
			WithField("delay_ms", delay.Milliseconds()).
			Warn("Operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	eh.logger.WithError(lastErr).
		WithField("operation", operationName).
		WithField("max_attempts", policy.MaxAttempts).
		Error("Operation failed after all retry attempts")

	return lastErr
}

// ExecuteWithCircuitBreaker executes a function with circuit breaker protection
func (eh *ErrorHandler) ExecuteWithCircuitBreaker(operation func() error, breakerName string) error {
	return eh.getOrCreateCircuitBreaker(breakerName).Execute(operation)
}

// ExecuteWithFullProtection executes a function with both retry and circuit breaker protection
func (eh *ErrorHandler) ExecuteWithFullProtection(ctx context.Context, operation func() error, operationName string) error {
	breakerName := fmt.Sprintf("%s_breaker", operationName)

	return eh.ExecuteWithCircuitBreaker(func() error {
		return eh.ExecuteWithRetry(ctx, operation, operationName)
	}, breakerName)
}

// HandleError classifies, logs and broadcasts an error
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, context map[string]interface{}) *ClassifiedError {
	if err == nil {
		return nil
	}

	classified := eh.ClassifyError(err, context)
	eh.logError(classified)
	eh.notifyError(classified)

	return classified
}

// AddNotificationHandler adds an error notification handler
func (eh *ErrorHandler) AddNotificationHandler(handler func(*ClassifiedError)) {
	eh.mutex.Lock()
	defer eh.mutex.Unlock()
	eh.notificationHandlers = append(eh.notificationHandlers, handler)
}

// GetCircuitBreakerStatus returns the status of all circuit breakers
func (eh *ErrorHandler) GetCircuitBreakerStatus() map[string]ErrorCircuitBreakerState {
	eh.mutex.RLock()
	defer eh.mutex.RUnlock()

	status := make(map[string]ErrorCircuitBreakerState, len(eh.circuitBreakers))
	for name, breaker := range eh.circuitBreakers {
		status[name] = breaker.GetState()
	}
	return status
}

// SetRetryPolicy sets a custom retry policy
func (eh *ErrorHandler) SetRetryPolicy(policy *RetryPolicy) {
	eh.mutex.Lock()
	defer eh.mutex.Unlock()
	eh.retryPolicy = policy
}

func isRetryable(policy *RetryPolicy, err *ClassifiedError) bool {
	if !err.Retryable {
		return false
	}
	for _, retryableType := range policy.RetryableErrors {
		if err.Type == retryableType {
			return true
		}
	}
	return false
}

func calculateDelay(policy *RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	if policy.Jitter {
		jitterFactor := float64(time.Now().UnixNano()%100) / 100.0
		delay += delay * 0.1 * (2*jitterFactor - 1)
	}

	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	return time.Duration(delay)
}

func (eh *ErrorHandler) getOrCreateCircuitBreaker(name string) *ErrorCircuitBreaker {
	eh.mutex.RLock()
	breaker, exists := eh.circuitBreakers[name]
	eh.mutex.RUnlock()
	if exists {
		return breaker
	}

	eh.mutex.Lock()
	defer eh.mutex.Unlock()

	if breaker, exists := eh.circuitBreakers[name]; exists {
		return breaker
	}

	breaker = NewErrorCircuitBreaker(name, 5, 30*time.Second)
	breaker.onStateChange = eh.onCircuitBreakerStateChange
	eh.circuitBreakers[name] = breaker
	return breaker
}

func (eh *ErrorHandler) onCircuitBreakerStateChange(name string, from, to ErrorCircuitBreakerState) {
	eh.logger.WithField("breaker_name", name).
		WithField("from_state", string(from)).
		WithField("to_state", string(to)).
		Info("Circuit breaker state changed")
}

func (eh *ErrorHandler) logError(err *ClassifiedError) {
	logEntry := eh.logger.WithError(err.OriginalError).
		WithField("error_type", string(err.Type)).
		WithField("severity", string(err.Severity)).
		WithField("status_code", err.StatusCode).
		WithField("retryable", err.Retryable)

	for key, value := range err.Context {
		logEntry = logEntry.WithField(key, value)
	}

	if err.Severity == SeverityLow {
		logEntry.Warn(err.Message)
		return
	}
	logEntry.Error(err.Message)
}

func (eh *ErrorHandler) notifyError(err *ClassifiedError) {
	eh.mutex.RLock()
	handlers := make([]func(*ClassifiedError), len(eh.notificationHandlers))
	copy(handlers, eh.notificationHandlers)
	eh.mutex.RUnlock()

	for _, handler := range handlers {
		func(h func(*ClassifiedError)) {
			defer func() {
				if r := recover(); r != nil {
					eh.logger.WithField("panic", r).Error("Error notification handler panicked")
				}
			}()
			h(err)
		}(handler)
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, substring := range substrings {
		if strings.Contains(s, substring) {
			return true
		}
	}
	return false
}
