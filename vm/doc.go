// Package vm implements the dexvm runtime.
//
// This package contains:
//   - Class loading, linking and initialization from verified containers
//   - Object layout and field storage
//   - A stop-the-world mark-sweep heap with pluggable root sources
//   - The register interpreter with exception dispatch
//   - The native method bridge
//   - The thread list and suspension protocol used by the GC and debugger
package vm
