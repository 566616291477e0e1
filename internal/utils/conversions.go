package utils

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// ParseFields turns key=value arguments into record fields. Values that look like
// integers, floats or booleans are stored as such; everything else is a string.
// Quote a value ("'42'" or "\"true\"") to keep it a string.
func ParseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidField, "%q is not key=value", arg)
		}
		fields[key] = ToScalar(value)
	}
	return fields, nil
}

func ToScalar(value string) any {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

// FormatFields renders fields as sorted key=value pairs.
func FormatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
