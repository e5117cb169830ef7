// Package tokeninfo decodes the claims of an access token for diagnostics.
//
// Signatures are not verified. The result must never drive an authorization
// decision; it only tells an operator which audience, tenant and application a
// token was issued for and when it expires.
package tokeninfo
