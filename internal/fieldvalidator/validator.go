// Package fieldvalidator coerces raw cell text into typed values.
//
// Every function returns a Result; none of them panic on malformed input.
package fieldvalidator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"site-mass-upload/internal/models"
)

// Result is the outcome of validating one cell
type Result struct {
	Value   interface{}
	Error   *models.ValidationError
	Warning *models.ValidationWarning
}

// OK reports whether the cell produced no error
func (r Result) OK() bool {
	return r.Error == nil
}

var (
	numberPattern  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	isoDate        = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	slashDate      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	dashDate       = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	altISODate     = regexp.MustCompile(`^(\d{4})[/.](\d{1,2})[/.](\d{1,2})$`)
	dotDate        = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	clockTime      = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	dottedTime     = regexp.MustCompile(`^(\d{1,2})\.(\d{2})$`)
	patternCache   sync.Map
	trueValues     = map[string]bool{"true": true, "yes": true, "1": true, "y": true}
	falseValues    = map[string]bool{"false": true, "no": true, "0": true, "n": true}
	dateSuggestion = "Use YYYY-MM-DD, DD/MM/YYYY or DD-MM-YYYY, e.g. 2024-01-15"
	timeSuggestion = "Use HH:MM or HH:MM:SS, e.g. 08:30"
)

// Validate coerces raw into the type declared by field
func Validate(raw string, field models.FieldConfig, row int) Result {
	value := strings.TrimSpace(raw)

	if value == "" {
		if field.Required {
			return fail(field, row, raw, models.ErrorKindRequired,
				fmt.Sprintf("%s is required", field.Header), "")
		}
		return Result{Value: defaultValue(field, row)}
	}

	switch field.Type {
	case models.FieldTypeNumber:
		return validateNumber(value, field, row)
	case models.FieldTypeDate:
		return validateDate(value, field, row)
	case models.FieldTypeTime:
		return validateTime(value, field, row)
	case models.FieldTypeBoolean:
		return validateBoolean(value, field, row)
	case models.FieldTypeEnum:
		return validateEnum(value, field, row)
	default:
		return validateString(value, field, row)
	}
}

// FormatNumber renders a coerced number in the shortest form Validate accepts
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func defaultValue(field models.FieldConfig, row int) interface{} {
	if field.Default == nil || strings.TrimSpace(*field.Default) == "" {
		return nil
	}
	f := field
	f.Required = false
	f.Default = nil
	res := Validate(*field.Default, f, row)
	if res.Error != nil {
		return nil
	}
	return res.Value
}

// NormalizeNumber strips thousands separators and interior whitespace
func NormalizeNumber(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '_', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, value)
}

func validateNumber(value string, field models.FieldConfig, row int) Result {
	cleaned := NormalizeNumber(value)
	if !numberPattern.MatchString(cleaned) {
		return fail(field, row, value, models.ErrorKindType,
			fmt.Sprintf("%s must be a number, got %q", field.Header, value), "")
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return fail(field, row, value, models.ErrorKindType,
			fmt.Sprintf("%s must be a number, got %q", field.Header, value), "")
	}
	return Result{Value: n}
}

func validateDate(value string, field models.FieldConfig, row int) Result {
	if iso, ok := ParseDate(value); ok {
		return Result{Value: iso}
	}

	suggestion := dateSuggestion
	if y, m, d, ok := matchDate(value, altISODate, 1, 2, 3); ok && validCalendarDate(y, m, d) {
		suggestion = fmt.Sprintf("Did you mean %s?", formatDate(y, m, d))
	} else if y, m, d, ok := matchDate(value, dotDate, 3, 2, 1); ok && validCalendarDate(y, m, d) {
		suggestion = fmt.Sprintf("Did you mean %s?", formatDate(y, m, d))
	}

	return fail(field, row, value, models.ErrorKindFormat,
		fmt.Sprintf("%s is not a valid date: %q", field.Header, value), suggestion)
}

// ParseDate accepts YYYY-MM-DD, DD/MM/YYYY and DD-MM-YYYY and returns the ISO form
func ParseDate(value string) (string, bool) {
	shapes := []struct {
		re         *regexp.Regexp
		yi, mi, di int
	}{
		{isoDate, 1, 2, 3},
		{slashDate, 3, 2, 1},
		{dashDate, 3, 2, 1},
	}
	for _, s := range shapes {
		y, m, d, ok := matchDate(value, s.re, s.yi, s.mi, s.di)
		if !ok {
			continue
		}
		if !validCalendarDate(y, m, d) {
			return "", false
		}
		return formatDate(y, m, d), true
	}
	return "", false
}

func matchDate(value string, re *regexp.Regexp, yi, mi, di int) (int, int, int, bool) {
	m := re.FindStringSubmatch(value)
	if m == nil {
		return 0, 0, 0, false
	}
	y, _ := strconv.Atoi(m[yi])
	mo, _ := strconv.Atoi(m[mi])
	d, _ := strconv.Atoi(m[di])
	return y, mo, d, true
}

func validCalendarDate(y, m, d int) bool {
	if y < 1 || m < 1 || m > 12 || d < 1 {
		return false
	}
	return d <= daysIn(y, m)
}

func daysIn(y, m int) int {
	switch m {
	case 2:
		if isLeap(y) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func formatDate(y, m, d int) string {
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

func validateTime(value string, field models.FieldConfig, row int) Result {
	if t, ok := ParseTime(value); ok {
		return Result{Value: t}
	}

	suggestion := timeSuggestion
	if m := dottedTime.FindStringSubmatch(value); m != nil {
		if t, ok := ParseTime(m[1] + ":" + m[2]); ok {
			suggestion = fmt.Sprintf("Did you mean %s?", t[:5])
		}
	}

	return fail(field, row, value, models.ErrorKindFormat,
		fmt.Sprintf("%s is not a valid time: %q", field.Header, value), suggestion)
}

// ParseTime accepts H:MM or H:MM:SS and returns HH:MM:SS
func ParseTime(value string) (string, bool) {
	m := clockTime.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s := 0
	if m[3] != "" {
		s, _ = strconv.Atoi(m[3])
	}
	if h > 23 || mi > 59 || s > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, mi, s), true
}

func validateBoolean(value string, field models.FieldConfig, row int) Result {
	v := strings.ToLower(value)
	switch {
	case trueValues[v]:
		return Result{Value: true}
	case falseValues[v]:
		return Result{Value: false}
	}
	return fail(field, row, value, models.ErrorKindFormat,
		fmt.Sprintf("%s must be yes or no, got %q", field.Header, value),
		"Use one of: true, yes, 1, y, false, no, 0, n")
}

func validateEnum(value string, field models.FieldConfig, row int) Result {
	for _, allowed := range field.EnumValues {
		if strings.EqualFold(allowed, value) {
			return Result{Value: allowed}
		}
	}
	return fail(field, row, value, models.ErrorKindEnum,
		fmt.Sprintf("%s must be one of: %s (got %q)", field.Header, strings.Join(field.EnumValues, ", "), value), "")
}

func validateString(value string, field models.FieldConfig, row int) Result {
	res := Result{Value: value}

	if field.Pattern != "" {
		re, err := compilePattern(field.Pattern)
		if err != nil || !re.MatchString(value) {
			res.Error = newError(field, row, value, models.ErrorKindFormat,
				fmt.Sprintf("%s has an invalid format: %q", field.Header, value), "")
		}
	}

	if field.MaxLength > 0 {
		runes := []rune(value)
		if len(runes) > field.MaxLength {
			res.Value = string(runes[:field.MaxLength])
			res.Warning = &models.ValidationWarning{
				RowNumber: row,
				Field:     field.Name,
				Header:    field.Header,
				Value:     value,
				Message:   fmt.Sprintf("%s is longer than %d characters and was truncated", field.Header, field.MaxLength),
			}
		}
	}

	return res
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func fail(field models.FieldConfig, row int, value string, kind models.ErrorKind, message, suggestion string) Result {
	return Result{Error: newError(field, row, value, kind, message, suggestion)}
}

func newError(field models.FieldConfig, row int, value string, kind models.ErrorKind, message, suggestion string) *models.ValidationError {
	return &models.ValidationError{
		RowNumber:  row,
		Field:      field.Name,
		Header:     field.Header,
		Value:      value,
		Kind:       kind,
		Message:    message,
		Suggestion: suggestion,
	}
}
