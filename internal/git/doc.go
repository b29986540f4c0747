// Package git checks out the revision a run builds and computes the set of
// paths a change touches.
//
// Checkout clones the repository without a working tree, fetches the
// change reference when it is not a branch (pull/merge request refs), and
// checks out the exact head commit of the change. ChangedPaths diffs a
// head revision against its merge base with a base revision, the same set a
// forge reports for a pull request.
package git
