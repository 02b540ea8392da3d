// Package review is the gate's decision engine.
//
// A run fetches one ChangeUnit per path from a ChangeSource, classifies it
// with an ordered rule engine (SKIP, STANDARD or CRITICAL), groups push-stage
// units into batches, and sends each batch to a review backend through the
// Invoker. Backend answers are normalized into APPROVE, REJECT or
// INCONCLUSIVE verdicts, appended to the RunReport in submission order, and
// the Policy turns the report into ALLOW or BLOCK and a process exit code.
//
// Classify and NormalizeResponse are pure and need no network.
package review
