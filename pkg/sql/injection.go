package sql

import (
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a parameter value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string // Name of the parameter that failed the check
	ParamValue  any    // The value that was checked
}

// CheckParameterForInjection uses libinjection to detect SQL injection patterns
// in a parameter value.
//
// Only string values are checked. Numbers and booleans return nil.
//
// Example:
//
//	result := CheckParameterForInjection("pattern", "buffer")
//	// result == nil
//
//	result := CheckParameterForInjection("pattern", "x' OR '1'='1")
//	// result.IsSQLi == true
//	// result.ParamName == "pattern"
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// UnsafeInputError reports a tool input rejected before it reached SQL text.
type UnsafeInputError struct {
	ParamName   string
	Fingerprint string
	Reason      string
}

func (e *UnsafeInputError) Error() string {
	if e.Fingerprint != "" {
		return fmt.Sprintf("parameter %q rejected: %s (fingerprint %s)", e.ParamName, e.Reason, e.Fingerprint)
	}
	return fmt.Sprintf("parameter %q rejected: %s", e.ParamName, e.Reason)
}

var likeWordPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// ValidateLikePattern screens a value that will be embedded in a
// LIKE '%...%' literal. Only letters, digits and underscores are accepted,
// and the value must also pass libinjection.
func ValidateLikePattern(paramName, value string) error {
	if result := CheckParameterForInjection(paramName, value); result != nil {
		return &UnsafeInputError{
			ParamName:   paramName,
			Fingerprint: result.Fingerprint,
			Reason:      "SQL injection pattern detected",
		}
	}
	if !likeWordPattern.MatchString(value) {
		return &UnsafeInputError{
			ParamName: paramName,
			Reason:    "only letters, digits and underscores are allowed",
		}
	}
	return nil
}
