// Package manager implements the HTTP transport for the update-manager sidecar.
//
// It exposes the health probe, the status report and the authenticated update
// trigger, delegating all business logic to a provided service interface.
package manager
