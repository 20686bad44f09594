// Package recorder implements the append-only event log every scenario
// owns: a totally ordered, immutable sequence of records translated later
// into the report (internal/report).
package recorder

import (
	"sync"

	"gopkg.in/yaml.v3"
)

// Recorder appends events in program order and exposes them as a read-only
// snapshot. It never fails and never loses an event; the only bound on
// memory is the number of events recorded.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) append(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of the log in insertion order. Later appends do
// not mutate the returned slice.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// YAML renders the full event stream as YAML, for KEST_SHOW_EVENTS-style
// dumps (the env var itself is read by the caller, not this package).
func (r *Recorder) YAML() ([]byte, error) {
	return yaml.Marshal(r.Events())
}

func (r *Recorder) ScenarioStart(name string) {
	r.append(Event{Kind: KindScenarioStart, Name: name})
}

func (r *Recorder) ScenarioEnd() {
	r.append(Event{Kind: KindScenarioEnd})
}

func (r *Recorder) BDD(kind Kind, description string) {
	r.append(Event{Kind: kind, Description: description})
}

func (r *Recorder) ActionStart(description string) {
	r.append(Event{Kind: KindActionStart, Description: description})
}

func (r *Recorder) ActionEnd(ok bool, err error) {
	r.append(Event{Kind: KindActionEnd, OK: ok, Error: NewErrorInfo(err)})
}

func (r *Recorder) CommandRun(cmd string, args []string, stdin, stdinLanguage string) {
	r.append(Event{
		Kind:          KindCommandRun,
		Cmd:           cmd,
		Args:          args,
		Stdin:         stdin,
		StdinLanguage: stdinLanguage,
	})
}

func (r *Recorder) CommandResult(exitCode int, stdout, stderr, stdoutLanguage, stderrLanguage string) {
	r.append(Event{
		Kind:           KindCommandResult,
		ExitCode:       exitCode,
		Stdout:         stdout,
		Stderr:         stderr,
		StdoutLanguage: stdoutLanguage,
		StderrLanguage: stderrLanguage,
	})
}

func (r *Recorder) RetryStart() {
	r.append(Event{Kind: KindRetryStart})
}

func (r *Recorder) RetryAttempt(attempt int) {
	r.append(Event{Kind: KindRetryAttempt, Attempt: attempt})
}

func (r *Recorder) RetryEnd(attempts int, success bool, reason RetryReason, err error) {
	r.append(Event{
		Kind:     KindRetryEnd,
		Attempts: attempts,
		Success:  success,
		Reason:   reason,
		Error:    NewErrorInfo(err),
	})
}

func (r *Recorder) RevertingsStart() {
	r.append(Event{Kind: KindRevertingsStart})
}

func (r *Recorder) RevertingsEnd() {
	r.append(Event{Kind: KindRevertingsEnd})
}

func (r *Recorder) RevertingsSkipped() {
	r.append(Event{Kind: KindRevertingsSkipped})
}
