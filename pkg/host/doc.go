// Package host defines the collaborators a rendering adapter consumes from the
// surrounding application: the view-path provider that maps namespaces to
// directories, and the host-wide cache root and debug flag. Registry is a
// mutable, concurrency-safe ViewPathProvider for hosts that discover view
// directories at runtime; Static covers hosts whose configuration is fixed.
package host
