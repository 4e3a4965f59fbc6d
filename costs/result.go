// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package costs

// Result pairs an operation's outcome with the cost accumulated while
// producing it. The cost is meaningful even when Err is set: callers meter
// partial work done before the failure.
type Result[T any] struct {
	Value T
	Cost  OperationCost
	Err   error
}

// Ok wraps a successful value with its cost.
func Ok[T any](value T, cost OperationCost) Result[T] {
	return Result[T]{Value: value, Cost: cost}
}

// Err wraps a failure with the cost spent before it occurred.
func Err[T any](err error, cost OperationCost) Result[T] {
	return Result[T]{Err: err, Cost: cost}
}

// Unwrap returns the value, the cost and the error as a plain triple.
func (r Result[T]) Unwrap() (T, OperationCost, error) {
	return r.Value, r.Cost, r.Err
}

// AndThen feeds a successful value into f, adding the receiver's cost to
// whatever f accumulates. On error it short-circuits, carrying the cost
// forward unchanged.
func AndThen[T, U any](r Result[T], f func(T) Result[U]) Result[U] {
	if r.Err != nil {
		return Result[U]{Err: r.Err, Cost: r.Cost}
	}
	next := f(r.Value)
	next.Cost.Add(&r.Cost)
	return next
}

// MapOk transforms a successful value without touching the cost.
func MapOk[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.Err != nil {
		return Result[U]{Err: r.Err, Cost: r.Cost}
	}
	return Result[U]{Value: f(r.Value), Cost: r.Cost}
}

// AddCost folds an extra cost into the result, success or not.
func (r Result[T]) AddCost(extra *OperationCost) Result[T] {
	r.Cost.Add(extra)
	return r
}
