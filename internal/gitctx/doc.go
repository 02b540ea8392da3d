// Package gitctx reads change content from a git working tree.
//
// [Source] implements review.ChangeSource by shelling out to git: staged
// diffs for pre-commit, and push-base to HEAD diffs for pre-push. It also
// lists changed files for a stage and filters them with include/exclude
// globs. Every git command runs with the repository as its working
// directory; the process directory is never changed.
package gitctx
