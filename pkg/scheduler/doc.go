/*
Package scheduler matches pending tasks to eligible workers and dispatches
them over the bus. It owns the priority-ordered pending queue; the
Coordinator feeds it submitted tasks and supplies callbacks for what
happens after a dispatch decision (record the in-flight assignment, or
mark a task terminal without ever reaching a worker).

Matching and scoring follow the capability-coverage formula: a worker is
eligible only if it declares support for the task's kind at all, and among
eligible workers the one with the highest weighted score (capability
coverage, preferred-type match, performance fit) wins. Tasks are taken in
priority order, oldest first within a priority; among equally scored
workers the one with the lowest current load wins, then the
lexicographically smallest worker id.
*/
package scheduler
