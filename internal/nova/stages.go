package nova

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/szaher/nova/internal/agent"
	"github.com/szaher/nova/internal/iteration"
	"github.com/szaher/nova/internal/llm"
	"github.com/szaher/nova/internal/telemetry"
)

// Stage requests. The wording is free; the outputs each stage records are not.
const (
	unpackRequest = "Unpack this problem. Break it into its core components, identify the key " +
		"complexities, and suggest preliminary strategies for addressing it."

	assembleRequest = "Which domains of expertise are required to solve this problem? " +
		"Answer with one domain name per line and nothing else."

	preludeRequest = "Open the collaborative ideation. Frame the problem for the experts listed in the " +
		"context, state what each should focus on, and note how their perspectives connect."

	expertRequest = "Contribute your perspective on this problem from the standpoint of %s. " +
		"Build on the problem analysis and the framing in the context."

	critiqueRequest = "Critically evaluate the proposed solution assembled from the experts' contributions."

	summaryRequest = "Summarize the progress made on this problem so far. Then give the recommended " +
		"next steps under a line that reads exactly \"## Next Steps\"."
)

// stageRun carries the state of one stage execution. work is a private
// copy of the iteration; it is committed only if the stage succeeds.
type stageRun struct {
	engine *Engine
	work   *iteration.Iteration
	stage  iteration.Stage
	tokens *llm.TokenTracker
}

func (r *stageRun) execute(ctx context.Context) (iteration.Result, error) {
	switch r.stage {
	case iteration.ProblemUnpacking:
		return r.unpack(ctx)
	case iteration.ExpertiseAssembly:
		return r.assemble(ctx)
	case iteration.CollaborativeIdeation:
		return r.ideate(ctx)
	case iteration.CriticalAnalysis:
		return r.critique(ctx)
	case iteration.SummaryAndNextSteps:
		return r.summarize(ctx)
	default:
		return iteration.Result{}, fmt.Errorf("%w: unknown stage %d", ErrStageSequence, int(r.stage))
	}
}

func (r *stageRun) unpack(ctx context.Context) (iteration.Result, error) {
	text, err := r.call(ctx, agent.RoleContinuity, "", 0, agent.Input{
		Message:          unpackRequest,
		ProblemStatement: r.work.ProblemStatement,
	})
	if err != nil {
		return iteration.Result{}, err
	}
	return iteration.TextResult(text), nil
}

func (r *stageRun) assemble(ctx context.Context) (iteration.Result, error) {
	text, err := r.call(ctx, agent.RoleContinuity, "", 0, agent.Input{
		Message:          assembleRequest,
		ProblemStatement: r.work.ProblemStatement,
		Context:          "Problem analysis:\n" + r.work.Text(iteration.ProblemUnpacking),
	})
	if err != nil {
		return iteration.Result{}, err
	}
	r.work.RequiredExperts = ParseExperts(text, r.engine.filter, r.engine.maxExperts)
	return iteration.TextResult(text), nil
}

func (r *stageRun) ideate(ctx context.Context) (iteration.Result, error) {
	shared := fmt.Sprintf("Problem analysis:\n%s\n\nParticipating experts:\n- %s",
		r.work.Text(iteration.ProblemUnpacking), strings.Join(r.work.RequiredExperts, "\n- "))

	prelude, err := r.call(ctx, agent.RoleContinuity, "", 0, agent.Input{
		Message:          preludeRequest,
		ProblemStatement: r.work.ProblemStatement,
		Context:          shared,
	})
	if err != nil {
		return iteration.Result{}, err
	}

	expertCtx := shared + "\n\nDiscussion framing:\n" + prelude
	texts := make([]string, len(r.work.RequiredExperts))
	input := func(domain string) agent.Input {
		return agent.Input{
			Message:          fmt.Sprintf(expertRequest, domain),
			ProblemStatement: r.work.ProblemStatement,
			Context:          expertCtx,
		}
	}

	if r.engine.parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, domain := range r.work.RequiredExperts {
			i, domain := i, domain
			g.Go(func() error {
				text, err := r.call(gctx, agent.RoleDomainExpert, domain, 0, input(domain))
				if err != nil {
					return fmt.Errorf("expert %q: %w", domain, err)
				}
				texts[i] = text
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return iteration.Result{}, err
		}
	} else {
		for i, domain := range r.work.RequiredExperts {
			text, err := r.call(ctx, agent.RoleDomainExpert, domain, 0, input(domain))
			if err != nil {
				return iteration.Result{}, fmt.Errorf("expert %q: %w", domain, err)
			}
			texts[i] = text
		}
	}

	contributions := iteration.Contributions{}.Set(iteration.ContinuityKey, prelude)
	for i, domain := range r.work.RequiredExperts {
		contributions = contributions.Set(domain, texts[i])
	}
	r.work.ExpertiseContributions = contributions
	return iteration.Result{Contributions: contributions.Clone()}, nil
}

func (r *stageRun) critique(ctx context.Context) (iteration.Result, error) {
	text, err := r.call(ctx, agent.RoleCriticalAnalysis, "", 0, agent.Input{
		Message:          critiqueRequest,
		ProblemStatement: r.work.ProblemStatement,
		ProposedSolution: r.work.ExpertiseContributions.Render(),
	})
	if err != nil {
		return iteration.Result{}, err
	}
	r.work.CriticalAnalysis = &text
	return iteration.TextResult(text), nil
}

func (r *stageRun) summarize(ctx context.Context) (iteration.Result, error) {
	critical := ""
	if r.work.CriticalAnalysis != nil {
		critical = *r.work.CriticalAnalysis
	}
	text, err := r.call(ctx, agent.RoleContinuity, "", r.engine.summaryMaxTokens, agent.Input{
		Message:          summaryRequest,
		ProblemStatement: r.work.ProblemStatement,
		Context: fmt.Sprintf("Problem analysis:\n%s\n\nExpert contributions:\n%s\n\nCritical analysis:\n%s",
			r.work.Text(iteration.ProblemUnpacking), r.work.ExpertiseContributions.Render(), critical),
	})
	if err != nil {
		return iteration.Result{}, err
	}
	summary, next := SplitSummary(text)
	r.work.Summary = &summary
	r.work.NextSteps = &next
	return iteration.TextResult(text), nil
}

// call runs one fresh agent and returns its text. With an observer the
// agent streams and every delta is forwarded.
func (r *stageRun) call(ctx context.Context, role agent.Role, domain string, maxTokens int, in agent.Input) (string, error) {
	e := r.engine
	a, err := e.newAgent(role, domain, maxTokens)
	if err != nil {
		return "", err
	}
	ctx, span := e.tracer.StartSpan(ctx, "agent", telemetry.AgentTags(a.Name(), string(role)))

	var resp *agent.Response
	if e.observer == nil {
		resp, err = a.Process(ctx, in)
	} else {
		var sr *agent.StreamResponse
		sr, err = a.Stream(ctx, in)
		if err == nil {
			for d := range sr.Deltas {
				e.notify(StageEvent{Type: EventAgentDelta, IterationID: r.work.ID, Stage: r.stage, Agent: a.Name(), Text: d})
			}
			resp, err = sr.Wait()
		}
	}

	if err != nil {
		e.metrics.RecordAgentCall(string(role), "error", nil, false)
		e.tracer.EndSpan(span, err)
		return "", err
	}
	e.metrics.RecordAgentCall(string(role), "ok", resp.Usage, resp.Structured.Degraded)
	e.tracer.EndSpan(span, nil)

	r.tokens.Add(resp.Usage)
	return resp.Text, nil
}

// Summary delimiters, tried in order.
var nextStepsDelimiters = []string{"## Next Steps", "Next Steps:"}

// SplitSummary splits a summary-stage response at the first line that
// consists of a next-steps delimiter. Without one, the whole response is
// the summary and next steps are iteration.NextStepsUndefined.
func SplitSummary(text string) (summary, nextSteps string) {
	lines := strings.Split(text, "\n")
	for _, delim := range nextStepsDelimiters {
		for i, line := range lines {
			if strings.TrimSpace(line) != delim {
				continue
			}
			summary = strings.TrimSpace(strings.Join(lines[:i], "\n"))
			nextSteps = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			return summary, nextSteps
		}
	}
	return text, iteration.NextStepsUndefined
}
