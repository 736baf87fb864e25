package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PanicError は回収した panic をステージのエラーとして運ぶ。
// オーケストレータはこれを警告として記録し、後続ステージを判断する。
type PanicError struct {
	// Operation は panic を回収したステージ名
	Operation string
	// PanicValue は panic() に渡された値
	PanicValue interface{}
	// StackTrace は回収時点のゴルーチンのスタック
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("tabflow: panic in %s: %v", e.Operation, e.PanicValue)
}

// String includes the captured stack.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s", e.Operation, e.PanicValue, e.StackTrace)
}

// Unwrap exposes a panicked error value, so errors.Is sees through
// panic(err) the same way it sees through a returned err.
func (e *PanicError) Unwrap() error {
	if err, ok := e.PanicValue.(error); ok {
		return err
	}
	return nil
}

// MarshalZerologObject はzerologのイベントに panic 情報を追加します。
func (e *PanicError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Str("panic", fmt.Sprint(e.PanicValue)).
		Str("type", "PanicError")
}

// NewPanicError captures the current stack. Call it from the deferred
// function that recovered.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		Operation:  operation,
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
	}
}

// Recover converts a panic into *PanicError. Defer it with the address of
// the named error result:
//
//	func (r *Runner) Features(opts FeaturesOptions) (res *FeaturesResult, err error) {
//	    defer errors.Recover(&err, "features")
//
// When err already holds an error, the panic is reported around it and
// errors.Is still matches the original.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = errors.Wrapf(*err, "panic in %s: %v (original error)", operation, r)
		return
	}
	*err = NewPanicError(operation, r)
}

// SafeExecute runs fn, returning its error or the panic it raised.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
