// Package otc is the one-time-code registry for deferred account actions.
//
// A code is six uppercase alphanumeric characters bound, in the token store,
// to a pending action: one of [ConfirmAccount], [UpdateAccount] or
// [DeleteAccount]. The pending action is a closed sum type; only the variants
// in this package implement [Pending].
//
// The registry issues, loads and consumes entries. Applying the action is
// the caller's job, and the caller consumes the code only after the
// mutation has committed.
package otc
