package health

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/MrWong99/murmur/internal/resilience"
)

// BreakerChecker fails while cb is open, i.e. while synthesis requests are
// being rejected without reaching the backend. Half-open counts as ready so
// that probe traffic can close the breaker again.
func BreakerChecker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "synthesis",
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit breaker %q is %s", cb.Name(), s)
			}
			return nil
		},
	}
}

// TokenChecker fails when src cannot produce a valid token, typically because
// the session expired and the user has to log in again.
func TokenChecker(src oauth2.TokenSource) Checker {
	return Checker{
		Name: "auth",
		Check: func(ctx context.Context) error {
			type res struct {
				tok *oauth2.Token
				err error
			}
			ch := make(chan res, 1)
			go func() {
				tok, err := src.Token()
				ch <- res{tok, err}
			}()
			select {
			case r := <-ch:
				if r.err != nil {
					return r.err
				}
				if !r.tok.Valid() {
					return errors.New("token is not valid")
				}
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}
