// Package jwt issues and verifies the short-lived access tokens carried by the
// access_token cookie or an Authorization bearer header.
//
// A parsed token proves only that the server signed it and that it has not
// expired. Whether its session is still active is decided by the caller.
package jwt
