// Package internal contains the implementation packages of sitesmith.
//
// # Package Organization
//
//   - config: configuration loading, validation and the Path Table
//   - errors: structured errors and the recoverable/fatal error policy
//   - logging: the zap-backed structured logger
//   - notify: delivery of recoverable task failures
//   - pipeline: tasks, Series/Parallel composition, the runner and registry
//   - build: esbuild bundling of styles and scripts, asset copying
//   - renderer: page templates, markdown pages and HTML pretty-printing
//   - blur: the frosted-glass background geometry and its browser snippet
//   - watcher: glob bindings over fsnotify with optional debouncing
//   - server: static dev server with websocket live reload
//   - tasks: the named site tasks and the build and default sequences
//   - version: build information
//
// # Flow
//
// The cmd package loads a config.Config, builds a tasks.Set from it and runs
// the requested task through a pipeline.Runner. The default task cleans the
// output root, runs the six build tasks in parallel, then runs the watch task
// and the dev server together until the process is interrupted. Recoverable
// failures go through notify to the log and to connected browsers.
package internal
