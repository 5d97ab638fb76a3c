// Package rbac answers role-based authorization questions for the admin
// dashboard: may a role perform an action on a resource, and may it open an
// admin route.
//
// Every function here is pure. The same table gates API handlers on the server
// and navigation in the dashboard UI; the server-side answer is authoritative.
//
// # What this package must NOT do
//
//   - Perform I/O or look up sessions.
//   - Mutate the permission table after init.
package rbac
