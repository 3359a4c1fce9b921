package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"site-mass-upload/internal/logger"
)

// NotificationLevel represents the level of notification
type NotificationLevel string

const (
	NotificationLevelInfo     NotificationLevel = "info"
	NotificationLevelWarning  NotificationLevel = "warning"
	NotificationLevelError    NotificationLevel = "error"
	NotificationLevelCritical NotificationLevel = "critical"
)

// NotificationRule decides which classified errors raise an alert
type NotificationRule struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	ErrorTypes []ErrorType     `json:"error_types"`
	Severities []ErrorSeverity `json:"severities"`
	Operations []string        `json:"operations"`
	Threshold  int             `json:"threshold"`
	TimeWindow time.Duration   `json:"time_window"`
	Cooldown   time.Duration   `json:"cooldown"`
	Enabled    bool            `json:"enabled"`

	lastNotification time.Time
	count            int
	windowStart      time.Time
}

// NotificationMessage is one raised alert
type NotificationMessage struct {
	Level     NotificationLevel `json:"level"`
	RuleID    string            `json:"rule_id"`
	Title     string            `json:"title"`
	Entity    string            `json:"entity,omitempty"`
	Operation string            `json:"operation,omitempty"`
	Count     int               `json:"count"`
	Timestamp time.Time         `json:"timestamp"`
}

// NotificationService turns bursts of classified errors into operator alerts.
// It is registered as a notification handler on ErrorHandler.
type NotificationService struct {
	logger *logger.Logger
	rules  map[string]*NotificationRule
	recent []NotificationMessage
	limit  int
	now    func() time.Time
	mutex  sync.Mutex
}

// NewNotificationService creates a notification service with the default rules
func NewNotificationService(logger *logger.Logger) *NotificationService {
	ns := &NotificationService{
		logger: logger,
		rules:  make(map[string]*NotificationRule),
		limit:  100,
		now:    time.Now,
	}
	ns.setupDefaultRules()
	return ns
}

// Attach registers the service on an error handler
func (ns *NotificationService) Attach(eh *ErrorHandler) {
	eh.AddNotificationHandler(ns.ProcessError)
}

// ProcessError evaluates every rule against a classified error
func (ns *NotificationService) ProcessError(err *ClassifiedError) {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()

	now := ns.now()
	for _, id := range ns.ruleIDs() {
		rule := ns.rules[id]
		if !ns.matches(err, rule) {
			continue
		}
		count, fire := ns.count(rule, now)
		if !fire {
			continue
		}
		ns.raise(err, rule, count, now)
	}
}

func (ns *NotificationService) matches(err *ClassifiedError, rule *NotificationRule) bool {
	if !rule.Enabled {
		return false
	}
	if len(rule.ErrorTypes) > 0 && !containsType(rule.ErrorTypes, err.Type) {
		return false
	}
	if len(rule.Severities) > 0 && !containsSeverity(rule.Severities, err.Severity) {
		return false
	}
	if len(rule.Operations) > 0 && !containsString(rule.Operations, contextString(err, "operation")) {
		return false
	}
	return true
}

// count advances the rule's window counter and reports whether the threshold
// was reached outside the cooldown
func (ns *NotificationService) count(rule *NotificationRule, now time.Time) (int, bool) {
	if rule.windowStart.IsZero() || now.Sub(rule.windowStart) > rule.TimeWindow {
		rule.windowStart = now
		rule.count = 0
	}
	rule.count++

	threshold := rule.Threshold
	if threshold < 1 {
		threshold = 1
	}
	if rule.count < threshold {
		return rule.count, false
	}
	if !rule.lastNotification.IsZero() && now.Sub(rule.lastNotification) < rule.Cooldown {
		return rule.count, false
	}

	count := rule.count
	rule.count = 0
	rule.windowStart = now
	rule.lastNotification = now
	return count, true
}

func (ns *NotificationService) raise(err *ClassifiedError, rule *NotificationRule, count int, now time.Time) {
	message := NotificationMessage{
		Level:     mapSeverityToLevel(err.Severity),
		RuleID:    rule.ID,
		Title:     fmt.Sprintf("[%s] %s error: %s", err.Severity, err.Type, err.Message),
		Entity:    contextString(err, "entity"),
		Operation: contextString(err, "operation"),
		Count:     count,
		Timestamp: now,
	}

	ns.recent = append(ns.recent, message)
	if len(ns.recent) > ns.limit {
		ns.recent = ns.recent[len(ns.recent)-ns.limit:]
	}

	entry := ns.logger.WithField("rule_id", rule.ID).
		WithField("level", string(message.Level)).
		WithField("count", count)
	if message.Entity != "" {
		entry = entry.WithField("entity", message.Entity)
	}
	if message.Operation != "" {
		entry = entry.WithField("operation", message.Operation)
	}
	if message.Level == NotificationLevelWarning || message.Level == NotificationLevelInfo {
		entry.Warn(message.Title)
		return
	}
	entry.Error(message.Title)
}

// setupDefaultRules sets up default notification rules
func (ns *NotificationService) setupDefaultRules() {
	// Critical errors - immediate notification
	ns.rules["critical_errors"] = &NotificationRule{
		ID:         "critical_errors",
		Name:       "Critical Errors",
		Severities: []ErrorSeverity{SeverityCritical},
		Threshold:  1,
		TimeWindow: time.Minute,
		Cooldown:   time.Minute,
		Enabled:    true,
	}

	// Imports failing against the database
	ns.rules["import_failures"] = &NotificationRule{
		ID:         "import_failures",
		Name:       "Import Failures",
		ErrorTypes: []ErrorType{ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeTransient, ErrorTypeUnknown},
		Operations: []string{"import"},
		Threshold:  5,
		TimeWindow: 5 * time.Minute,
		Cooldown:   10 * time.Minute,
		Enabled:    true,
	}

	ns.rules["circuit_breaker_open"] = &NotificationRule{
		ID:         "circuit_breaker_open",
		Name:       "Circuit Breaker Open",
		ErrorTypes: []ErrorType{ErrorTypeCircuit},
		Threshold:  1,
		TimeWindow: time.Minute,
		Cooldown:   5 * time.Minute,
		Enabled:    true,
	}
}

// AddRule adds or replaces a notification rule
func (ns *NotificationService) AddRule(rule *NotificationRule) {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()
	ns.rules[rule.ID] = rule
}

// RemoveRule removes a notification rule
func (ns *NotificationService) RemoveRule(ruleID string) {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()
	delete(ns.rules, ruleID)
}

// Recent returns the most recent alerts, oldest first
func (ns *NotificationService) Recent() []NotificationMessage {
	ns.mutex.Lock()
	defer ns.mutex.Unlock()
	return append([]NotificationMessage(nil), ns.recent...)
}

func (ns *NotificationService) ruleIDs() []string {
	ids := make([]string, 0, len(ns.rules))
	for id := range ns.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func mapSeverityToLevel(severity ErrorSeverity) NotificationLevel {
	switch severity {
	case SeverityMedium:
		return NotificationLevelWarning
	case SeverityHigh:
		return NotificationLevelError
	case SeverityCritical:
		return NotificationLevelCritical
	default:
		return NotificationLevelInfo
	}
}

func contextString(err *ClassifiedError, key string) string {
	if err.Context == nil {
		return ""
	}
	s, _ := err.Context[key].(string)
	return s
}

func containsType(list []ErrorType, t ErrorType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsSeverity(list []ErrorSeverity, s ErrorSeverity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
