package store

import (
	"errors"
	"reflect"
	"time"
)

// ErrSessionExpired rejects writes to the session token after its expiry.
var ErrSessionExpired = errors.New("session token expired")

// ClampList returns a middleware that keeps only the most recent max
// elements of slices written at path. The chat conversation uses it with
// max 100.
func ClampList(path string, max int) Middleware {
	return func(p string, value any, _ *Store) (any, error) {
		if p != path || value == nil {
			return value, nil
		}
		v := reflect.ValueOf(value)
		if v.Kind() != reflect.Slice || v.Len() <= max {
			return value, nil
		}
		return v.Slice(v.Len()-max, v.Len()).Interface(), nil
	}
}

// AutoClearError returns a middleware that clears path a fixed delay after a
// non-nil value is written to it.
func AutoClearError(path string, delay time.Duration) Middleware {
	return func(p string, value any, s *Store) (any, error) {
		if p != path || value == nil {
			return value, nil
		}
		written := value
		time.AfterFunc(delay, func() {
			// Only clear if the error is still the one we saw.
			if reflect.DeepEqual(s.Get(path), written) {
				if err := s.Set(path, nil); err != nil {
					s.logger.Warn("auto-clear failed", "path", path, "error", err)
				}
			}
		})
		return value, nil
	}
}

// RejectExpiredToken refuses writes to tokenPath once expiryPath (unix
// seconds) has passed, and forces the login overlay on.
func RejectExpiredToken(tokenPath, expiryPath, overlayPath string, now func() time.Time) Middleware {
	if now == nil {
		now = time.Now
	}
	return func(p string, value any, s *Store) (any, error) {
		if p != tokenPath {
			return value, nil
		}
		expiry, ok := toFloat(s.Get(expiryPath))
		if !ok || expiry == 0 {
			return value, nil
		}
		if float64(now().Unix()) < expiry {
			return value, nil
		}
		if err := s.Set(overlayPath, true); err != nil {
			s.logger.Warn("failed to force login overlay", "error", err)
		}
		return nil, ErrSessionExpired
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
