package runtime

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Input validation messages shown to the user.
const (
	MsgRequired      = "This field is required"
	MsgInvalidNum    = "Please enter a valid number"
	MsgInvalidEmail  = "Please enter a valid email address"
	MsgInvalidChoice = "Please select a valid option"
	MsgInvalidFormat = "Invalid format"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// validateInput checks raw input against an input node's configuration.
// It returns the value to bind, or a non-empty problem message.
func validateInput(raw string, d *domain.InputData) (any, string) {
	v := d.Validation
	if v == nil {
		v = &domain.InputValidation{}
	}

	if v.Required && strings.TrimSpace(raw) == "" {
		return nil, MsgRequired
	}

	switch d.InputType {
	case domain.InputNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, MsgInvalidNum
		}
		if v.Min != nil && n < *v.Min {
			return nil, "Minimum value is " + formatNumber(*v.Min)
		}
		if v.Max != nil && n > *v.Max {
			return nil, "Maximum value is " + formatNumber(*v.Max)
		}
		return n, ""

	case domain.InputEmail:
		if !emailPattern.MatchString(raw) {
			return nil, MsgInvalidEmail
		}
		return raw, ""

	case domain.InputChoice:
		if !slices.Contains(d.Choices, raw) {
			return nil, MsgInvalidChoice
		}
		return raw, ""

	default:
		if v.Pattern != "" {
			re, err := regexp.Compile(v.Pattern)
			if err != nil || !re.MatchString(raw) {
				return nil, MsgInvalidFormat
			}
		}
		length := float64(utf8.RuneCountInString(raw))
		if v.Min != nil && *v.Min > 0 && length < *v.Min {
			return nil, "Minimum length is " + formatNumber(*v.Min) + " characters"
		}
		if v.Max != nil && *v.Max > 0 && length > *v.Max {
			return nil, "Maximum length is " + formatNumber(*v.Max) + " characters"
		}
		return raw, ""
	}
}
