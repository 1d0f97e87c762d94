package middleware

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// PanicError carries a recovered panic value out of a guarded call.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverMiddleware runs next and turns a panic into a *PanicError.
func RecoverMiddleware(log *zap.SugaredLogger, next func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Panic recovered",
				"error", r,
				"stack", string(debug.Stack()))
			err = &PanicError{Value: r}
		}
	}()
	return next()
}
