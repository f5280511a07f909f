// internal/errors/service.go - retry, circuit breaking and CLI error reporting
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Service provides retry and reporting on top of the error taxonomy.
type Service struct {
	retryConfig     RetryConfig
	breakerConfig   CircuitBreakerConfig
	showTechnical   bool
	circuitBreakers map[string]*CircuitBreaker
	mu              sync.Mutex
}

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay" json:"base_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	CircuitClosed CircuitBreakerState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned when a breaker refuses an operation.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// CircuitBreaker trips after MaxFailures consecutive failures and lets one
// probe through once ResetTimeout has passed.
type CircuitBreaker struct {
	name            string
	maxFailures     int
	resetTimeout    time.Duration
	state           CircuitBreakerState
	failures        int
	lastFailureTime time.Time
	nextAttemptTime time.Time
	mu              sync.Mutex
}

// NewService creates a service with default retry settings.
func NewService() *Service {
	return NewServiceWithConfig(RetryConfig{}, CircuitBreakerConfig{})
}

// NewServiceWithConfig creates a service, filling zero values with defaults.
func NewServiceWithConfig(retry RetryConfig, breaker CircuitBreakerConfig) *Service {
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	} else if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = time.Second
	}
	if retry.BackoffFactor < 1 {
		retry.BackoffFactor = 2.0
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 30 * time.Second
	}
	if breaker.MaxFailures <= 0 {
		breaker.MaxFailures = 5
	}
	if breaker.ResetTimeout <= 0 {
		breaker.ResetTimeout = time.Minute
	}
	return &Service{
		retryConfig:     retry,
		breakerConfig:   breaker,
		circuitBreakers: make(map[string]*CircuitBreaker),
	}
}

// WithVerbose enables technical error details
func (s *Service) WithVerbose(verbose bool) *Service {
	s.showTechnical = verbose
	return s
}

// ExecuteWithRetry runs operation until it succeeds, fails with a
// non-retryable error, runs out of attempts or ctx is done.
func (s *Service) ExecuteWithRetry(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		attempts++
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == s.retryConfig.MaxRetries || !IsRetryable(err) {
			break
		}

		timer := time.NewTimer(s.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operationName, attempts, lastErr)
}

// Delay computes the exponential backoff delay for a zero-based attempt.
func (s *Service) Delay(attempt int) time.Duration {
	delay := float64(s.retryConfig.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.retryConfig.BackoffFactor
		if delay > float64(s.retryConfig.MaxDelay) {
			return s.retryConfig.MaxDelay
		}
	}
	return time.Duration(delay)
}

// Breaker returns the circuit breaker for a name, creating it on first use.
func (s *Service) Breaker(name string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.circuitBreakers[name]; ok {
		return cb
	}
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  s.breakerConfig.MaxFailures,
		resetTimeout: s.breakerConfig.ResetTimeout,
		state:        CircuitClosed,
	}
	s.circuitBreakers[name] = cb
	return cb
}

// GetCircuitBreakerStats returns the state of every breaker.
func (s *Service) GetCircuitBreakerStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]interface{}, len(s.circuitBreakers))
	for name, cb := range s.circuitBreakers {
		stats[name] = cb.GetStats()
	}
	return stats
}

// CanExecute checks if circuit breaker allows execution
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Now().After(cb.nextAttemptTime) {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records successful execution
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = CircuitClosed
}

// RecordFailure records failed execution
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = time.Now()

	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = CircuitOpen
		cb.nextAttemptTime = cb.lastFailureTime.Add(cb.resetTimeout)
	}
}

// GetState returns current circuit breaker state
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns circuit breaker statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":              cb.name,
		"state":             cb.state.String(),
		"failures":          cb.failures,
		"max_failures":      cb.maxFailures,
		"last_failure_time": cb.lastFailureTime,
	}
}

// GetUserFriendlyError converts technical errors to user-friendly messages
func (s *Service) GetUserFriendlyError(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	switch KindOf(err) {
	case KindConfig:
		return "Configuration Error",
			"The configuration file is invalid.",
			[]string{
				"Run the validate command for a full list of problems",
				"Check YAML indentation (use spaces, not tabs)",
				"Generate a fresh starter file with the template command",
			}
	case KindPersistence:
		return "Storage Error",
			"Vehicle records could not be written to the configured store.",
			[]string{
				"Check that the database is running and reachable",
				"Verify the store connection string and credentials",
			}
	case KindResource:
		return "Browser Unavailable",
			"A headless browser session could not be started.",
			[]string{
				"Install Chrome or Chromium, or disable browser rendering",
				"Lower browser.pool_size",
			}
	case KindTransient:
		return "Network Error",
			"A dealer website could not be reached.",
			[]string{
				"Check your internet connection",
				"Increase fetch.timeout in the configuration",
			}
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "yaml") || strings.Contains(lower, "config") {
		return "Configuration Error",
			"The configuration file could not be loaded.",
			[]string{"Check the file path and YAML syntax"}
	}

	return "Unexpected Error",
		"An unexpected error occurred during the operation.",
		[]string{
			"Try running the command again",
			"Re-run with -v for technical details",
		}
}

// GetExitCode returns appropriate exit code for error
func (s *Service) GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch KindOf(err) {
	case KindConfig:
		return 2
	case KindTransient:
		return 3
	case KindParse:
		return 4
	case KindPersistence:
		return 5
	case KindResource:
		return 6
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "config") || strings.Contains(lower, "yaml") {
		return 2
	}
	return 1
}

// FormatErrorForCLI formats error for command-line display
func (s *Service) FormatErrorForCLI(err error) string {
	title, message, suggestions := s.GetUserFriendlyError(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n%s\n", title, message)

	if s.showTechnical {
		fmt.Fprintf(&b, "\nTechnical details: %s\n", err.Error())
	}

	if len(suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, suggestion := range suggestions {
			fmt.Fprintf(&b, "  - %s\n", suggestion)
		}
	}

	return b.String()
}
