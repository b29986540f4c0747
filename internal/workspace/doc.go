// Package workspace manages per-run workspace directories.
//
// Every run gets a fresh directory under <data_dir>/runs/<run-id>. The
// repository is checked out into its src subdirectory unless the run is
// attached to an existing source tree (local mode), in which case only the
// scratch directory is created and the source tree is never removed.
package workspace
