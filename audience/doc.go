// Package audience describes the protected API surfaces a process talks to.
//
// A Descriptor binds a logical name ("arm", "graph", "keyvault") to the scope
// string the token endpoint expects and to the base URL of the surface.
// Adding a surface means adding a Descriptor, not writing code.
package audience
