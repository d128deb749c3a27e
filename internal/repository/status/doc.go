// Package status implements persistence for the update Record.
//
// The FileRepository stores and loads the record as JSON on disk using an
// atomic replace, and exposes a Repository interface that the manager
// service depends on.
package status
