// Package credential caches the bearer token used for summary requests and
// decides, before every submission, whether it may still be attached.
package credential

import (
	"context"
	"errors"
)

// Keys under which the cached credential lives.
const (
	TokenKey  = "medinotes_jwt"
	ExpiryKey = "medinotes_jwt_expiry"
)

// ErrStoreUnavailable wraps backend failures of a Store.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Store is the key-value storage the cached credential lives in. Missing
// keys are reported with ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, keys ...string) error
}
