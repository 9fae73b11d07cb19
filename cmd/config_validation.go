package cmd

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
)

// minSecretLen is the shortest accepted JWT signing secret.
const minSecretLen = 16

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any required value is missing or a configured value is malformed.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateSecretConfig(get, &validationErrs)
	validateMongoConfig(get, &validationErrs)
	validateRedisConfig(get, &validationErrs)
	validateS3Config(get, &validationErrs)
	validateClassifierConfig(get, &validationErrs)
	validateMailConfig(get, &validationErrs)
	validateWeatherConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateSecretConfig requires a JWT signing secret of reasonable length.
func validateSecretConfig(get configGetter, errs *[]string) {
	if !validateRequiredString(get, "settings.secret", errs) {
		return
	}

	secret, _ := parseStrictString(get("settings.secret"))
	if len(strings.TrimSpace(secret)) < minSecretLen {
		appendValidationError(errs, "settings.secret must be at least %d characters", minSecretLen)
	}
}

// validateMongoConfig validates the document store connection settings.
func validateMongoConfig(get configGetter, errs *[]string) {
	validateRequiredString(get, "settings.db.mongo.addr", errs)
	validateRequiredString(get, "settings.db.mongo.db", errs)
	validateOptionalStringNonEmpty(get, "settings.db.mongo.auth_db", errs)
}

// validateRedisConfig validates redis-related startup configuration values.
// Redis is optional; without it notifications are queued in memory.
func validateRedisConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.db.redis.db", 0, errs)
}

func validateS3Config(get configGetter, errs *[]string) {
	validateRequiredString(get, "settings.s3.endpoint", errs)
	validateRequiredString(get, "settings.s3.bucket", errs)
	validateOptionalBool(get, "settings.s3.use_ssl", errs)
	validateOptionalURL(get, "settings.s3.public_url", errs)

	if raw := get("settings.s3.endpoint"); raw != nil {
		if endpoint, err := parseStrictString(raw); err == nil && strings.Contains(endpoint, "://") {
			appendValidationError(errs, "settings.s3.endpoint must be host[:port] without scheme")
		}
	}
}

func validateClassifierConfig(get configGetter, errs *[]string) {
	validateRequiredString(get, "settings.classifier.api_key", errs)
	validateOptionalURL(get, "settings.classifier.api_base", errs)
	validateOptionalStringNonEmpty(get, "settings.classifier.model", errs)
	validateOptionalDuration(get, "settings.classifier.timeout", errs)
}

// validateMailConfig validates the SMTP relay used for alert notifications.
func validateMailConfig(get configGetter, errs *[]string) {
	validateRequiredString(get, "settings.mail.host", errs)
	validateOptionalIntRange(get, "settings.mail.port", 1, math.MaxUint16, errs)

	from := get("settings.mail.from")
	if from == nil {
		from = get("settings.mail.user")
	}
	if from == nil {
		appendValidationError(errs, "settings.mail.from or settings.mail.user is required")
		return
	}
	if addr, err := parseStrictString(from); err != nil || !strings.Contains(addr, "@") {
		appendValidationError(errs, "settings.mail.from must be an e-mail address")
	}

	validateOptionalIntMin(get, "settings.notify.workers", 1, errs)
}

// validateWeatherConfig validates the weather lookup. A missing api key is
// reported per request, so it is not required here.
func validateWeatherConfig(get configGetter, errs *[]string) {
	validateOptionalURL(get, "settings.weather.api_base", errs)
	validateOptionalDuration(get, "settings.weather.timeout", errs)
}

func validateWebConfig(get configGetter, errs *[]string) {
	validateOptionalURL(get, "settings.web.app_url", errs)
	validateOptionalDuration(get, "settings.web.timeout", errs)
	validateOptionalIntMin(get, "settings.web.upload_per_minute", 0, errs)
	validateOptionalIntMin(get, "settings.web.upload_burst", 1, errs)

	raw := get("settings.web.cors_origins")
	if raw == nil {
		return
	}

	origins, ok := toStringSlice(raw)
	if !ok {
		appendValidationError(errs, "settings.web.cors_origins must be a list of origins")
		return
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			continue
		}
		if parsed, err := url.Parse(origin); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			appendValidationError(errs, "settings.web.cors_origins entry %q must be an absolute origin or *", origin)
		}
	}
}

// validateRequiredString validates that key holds a non-empty string.
// It returns whether the value is usable.
func validateRequiredString(get configGetter, key string, errs *[]string) bool {
	raw := get(key)
	if raw == nil {
		appendValidationError(errs, "%s is required", key)
		return false
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil || strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must be a non-empty string", key)
		return false
	}

	return true
}

// validateOptionalBool validates an optionally configured boolean key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	validateOptionalIntRange(get, key, min, math.MaxInt, errs)
}

// validateOptionalIntRange validates an optionally configured integer key within [min, max].
func validateOptionalIntRange(get configGetter, key string, min, max int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	switch {
	case value < min:
		appendValidationError(errs, "%s must be >= %d", key, min)
	case value > max:
		appendValidationError(errs, "%s must be <= %d", key, max)
	}
}

// validateOptionalDuration validates a positive duration such as "30s".
// Bare integers are read as nanoseconds, matching the config loader.
func validateOptionalDuration(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	var d time.Duration
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			appendValidationError(errs, "%s must be a duration like 30s", key)
			return
		}
		d = parsed
	default:
		n, err := parseStrictInt64(raw)
		if err != nil {
			appendValidationError(errs, "%s must be a duration like 30s", key)
			return
		}
		d = time.Duration(n)
	}

	if d <= 0 {
		appendValidationError(errs, "%s must be positive", key)
	}
}

// validateOptionalURL validates an optionally configured absolute URL key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalURL(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string URL", key)
		return
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		appendValidationError(errs, "%s must be a valid absolute URL", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictInt64 parses a value as a strict int64.
func parseStrictInt64(value any) (int64, error) {
	parsed, err := parseStrictInt(value)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int64(parsed), nil
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// toStringSlice accepts yaml lists and comma separated env values.
func toStringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case string:
		return strings.Split(v, ","), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
