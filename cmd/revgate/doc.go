// Revgate is a git hook gate that sends changed files to an LLM reviewer
// and blocks the commit or push when the review rejects them.
//
// Each changed file is classified first: files with nothing but imports,
// comments or blank lines are skipped, files touching security, data access,
// concurrency or resource handling are reviewed as critical, and the rest
// get a standard review. Any rejection blocks with exit status 1.
//
// Usage:
//
//	revgate hook install                 # install pre-commit and pre-push hooks
//	revgate run --stage pre-commit       # review staged files
//	revgate run --stage pre-push         # review files changed since the push base
//	revgate history                      # list recorded runs
//	revgate config init                  # write .revgate.yaml with defaults
package main
