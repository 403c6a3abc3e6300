// Package userstore provides authgate.UserStore implementations.
//
// [Memory] keeps accounts in a mutex-guarded map and suits tests and single
// process deployments. [Redis] keeps one hash per account under
// "user:{email}" and implements create-if-absent and the conditional update
// used to consume one-time codes as server-side scripts, so concurrent
// service instances cannot both consume the same code.
//
// Emails are used as given; callers normalize them.
package userstore
