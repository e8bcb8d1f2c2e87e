// Package internal contains the implementation packages for the assetpipe
// CLI. Nothing here is importable outside this module.
//
// # Package Organization
//
//   - manifest: named groups of output filenames and the link renderer
//   - styles: stylesheet compilers, content hashing and CSS transforms
//   - build: the pipeline that cleans, compiles, fingerprints and renders
//   - watcher: fsnotify monitoring with debounced, de-duplicated batches
//   - session: the dev rebuild state machine driven by watcher batches
//   - websocket: the live reload hub that fans messages out to browsers
//   - server: the dev HTTP server with script and overlay injection
//   - services: wiring from configuration to the above for each command
//   - config, errors, logging, metrics, version: ambient support
//
// # Data Flow
//
// A dev session looks like this:
//
//	watcher -> session -> build.Pipeline -> manifest
//	                  \-> websocket hub -> browser
//	server serves the build root and the hub endpoint
//
// The production build runs the same pipeline once with optimisation
// transforms enabled and exits.
package internal
