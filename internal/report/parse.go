package report

import (
	"strings"

	"github.com/hashmap-kz/kscenario/internal/recorder"
)

// Parse folds a recorded event stream into the Report model in a single
// linear pass — no re-reading, per §4.7. State carried across the fold:
// the current scenario, the current BDD section, the current action (when
// not in the cleanup phase), the current cleanup item, and whether the
// cleanup phase is active.
func Parse(events []recorder.Event) *Report {
	p := &parser{report: &Report{}}
	for _, e := range events {
		p.step(e)
	}
	return p.report
}

type parser struct {
	report *Report

	scenario  *Scenario
	bdd       *BDDSection
	action    *Action
	overview  *OverviewItem
	cleanup   *CleanupItem
	inCleanup bool
}

func (p *parser) step(e recorder.Event) {
	switch e.Kind {
	case recorder.KindScenarioStart:
		p.onScenarioStart(e)
	case recorder.KindBDDGiven, recorder.KindBDDWhen, recorder.KindBDDThen, recorder.KindBDDAnd, recorder.KindBDDBut:
		p.onBDD(e)
	case recorder.KindActionStart:
		p.onActionStart(e)
	case recorder.KindCommandRun:
		p.onCommandRun(e)
	case recorder.KindCommandResult:
		p.onCommandResult(e)
	case recorder.KindRetryAttempt:
		p.onRetryAttempt()
	case recorder.KindRetryEnd:
		p.onRetryEnd(e)
	case recorder.KindActionEnd:
		p.onActionEnd(e)
	case recorder.KindRevertingsStart:
		p.onRevertingsStart()
	case recorder.KindRevertingsEnd:
		p.onRevertingsEnd()
	case recorder.KindRevertingsSkipped:
		p.onRevertingsSkipped()
	case recorder.KindScenarioEnd:
		p.onScenarioEnd()
	}
}

func (p *parser) onScenarioStart(e recorder.Event) {
	p.scenario = &Scenario{Name: e.Name}
	p.report.Scenarios = append(p.report.Scenarios, p.scenario)
	p.resetCurrents()
}

func (p *parser) resetCurrents() {
	p.bdd = nil
	p.action = nil
	p.overview = nil
	p.cleanup = nil
	p.inCleanup = false
}

func bddKeyword(kind recorder.Kind) string {
	switch kind {
	case recorder.KindBDDGiven:
		return "Given"
	case recorder.KindBDDWhen:
		return "When"
	case recorder.KindBDDThen:
		return "Then"
	case recorder.KindBDDAnd:
		return "And"
	case recorder.KindBDDBut:
		return "But"
	default:
		return ""
	}
}

func (p *parser) onBDD(e recorder.Event) {
	if p.scenario == nil {
		return
	}
	section := &BDDSection{Keyword: bddKeyword(e.Kind), Description: e.Description}
	p.scenario.Details = append(p.scenario.Details, section)
	p.bdd = section
}

func (p *parser) onActionStart(e recorder.Event) {
	if p.scenario == nil {
		return
	}
	if p.inCleanup {
		item := &CleanupItem{Action: e.Description, Status: StatusSuccess}
		p.scenario.Cleanup = append(p.scenario.Cleanup, item)
		p.cleanup = item
		return
	}

	act := &Action{Name: e.Description}
	if p.bdd != nil {
		p.bdd.Actions = append(p.bdd.Actions, act)
	} else {
		p.scenario.Details = append(p.scenario.Details, act)
	}
	p.action = act

	item := &OverviewItem{Name: e.Description, Status: StatusPending}
	p.scenario.Overview = append(p.scenario.Overview, item)
	p.overview = item
}

func (p *parser) onCommandRun(e recorder.Event) {
	if p.inCleanup {
		if p.cleanup != nil {
			p.cleanup.Command = CleanupCommand{Cmd: e.Cmd, Args: e.Args}
		}
		return
	}
	if p.action == nil {
		return
	}
	cmd := &Command{Cmd: e.Cmd, Args: e.Args}
	if e.Stdin != "" {
		cmd.Stdin = &Text{Content: e.Stdin, Language: e.StdinLanguage}
	}
	p.action.Commands = append(p.action.Commands, cmd)
}

func (p *parser) onCommandResult(e recorder.Event) {
	if p.inCleanup {
		if p.cleanup != nil {
			p.cleanup.Command.Output = combineOutput(e.Stdout, e.Stderr)
		}
		return
	}
	if p.action == nil || len(p.action.Commands) == 0 {
		return
	}
	last := p.action.Commands[len(p.action.Commands)-1]
	if strings.TrimSpace(e.Stdout) != "" {
		last.Stdout = &Text{Content: e.Stdout, Language: e.StdoutLanguage}
	}
	if strings.TrimSpace(e.Stderr) != "" {
		last.Stderr = &Text{Content: e.Stderr, Language: e.StderrLanguage}
	}
}

// onRetryAttempt implements the "collapse to last attempt" rule: clearing
// the current action's (or cleanup item's) commands here means the
// commands recorded from here on are only those of the final attempt.
func (p *parser) onRetryAttempt() {
	if p.inCleanup {
		if p.cleanup != nil {
			p.cleanup.Command = CleanupCommand{}
		}
		return
	}
	if p.action != nil {
		p.action.Commands = nil
	}
}

func (p *parser) onRetryEnd(e recorder.Event) {
	if p.inCleanup || p.action == nil {
		return
	}
	attempts := e.Attempts
	p.action.Attempts = &attempts
}

func (p *parser) onActionEnd(e recorder.Event) {
	if p.inCleanup {
		if p.cleanup != nil {
			p.cleanup.Status = statusFromOK(e.OK)
		}
		p.cleanup = nil
		return
	}
	if p.overview != nil {
		p.overview.Status = statusFromOK(e.OK)
	}
	if p.action != nil && !e.OK && e.Error != nil {
		p.action.Err = buildActionError(e.Error)
	}
	p.action = nil
	p.overview = nil
}

func statusFromOK(ok bool) Status {
	if ok {
		return StatusSuccess
	}
	return StatusFailure
}

func (p *parser) onRevertingsStart() {
	p.inCleanup = true
	p.bdd = nil
	p.action = nil
	p.overview = nil
	p.cleanup = nil
}

func (p *parser) onRevertingsEnd() {
	p.inCleanup = false
	p.cleanup = nil
}

func (p *parser) onRevertingsSkipped() {
	if p.scenario != nil {
		p.scenario.CleanupSkipped = true
	}
}

func (p *parser) onScenarioEnd() {
	p.scenario = nil
	p.resetCurrents()
}

func combineOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stdout == "" && stderr == "":
		return ""
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}

// buildActionError applies the "timed out" cause-unwrapping rule from
// §4.9: an error whose message starts with "Timed out after " and whose
// cause has a non-empty message is replaced, for reporting, by that cause
// — both message and stack come from it.
func buildActionError(info *recorder.ErrorInfo) *ActionError {
	resolved := info
	for strings.HasPrefix(resolved.Message, "Timed out after ") && resolved.Cause != nil && resolved.Cause.Message != "" {
		resolved = resolved.Cause
	}
	return &ActionError{
		Message: Text{Content: resolved.Message, Language: classifyMessage(resolved.Message)},
		Stack:   resolved.Stack,
	}
}
