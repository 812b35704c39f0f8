package agent

import "fmt"

// ContinuityName is the display name of the continuity agent.
const ContinuityName = "Discussion Continuity Expert"

// CriticName is the display name of the critical-analysis agent.
const CriticName = "Critical Analysis Expert"

const continuitySystemPrompt = `You are the Discussion Continuity Expert in a multi-expert problem-solving process.
You keep the discussion coherent across turns: you decompose problems, coordinate the
other experts, and summarize progress. Write concisely and neutrally.`

const continuityInstructions = `Respond to the current request. Keep continuity with the history above,
refer back to earlier conclusions where relevant, and organize your answer under clear headings
with bullet points.`

const criticSystemPrompt = `You are the Critical Analysis Expert in a multi-expert problem-solving process.
You evaluate proposed solutions rigorously and fairly, naming concrete risks and gaps.`

const criticInstructions = `Evaluate the proposed solution. Structure your answer under exactly these
headings, each followed by bullet points:
Strengths
Weaknesses
Suggested Improvements
Overall Assessment`

const expertInstructions = `Contribute your domain expertise. Structure your answer under these
headings, each followed by bullet points:
Key Concepts
Considerations
Best Practices
Opportunities
Recommendations`

var continuityParser = NewParser(
	Section{Key: "components", Aliases: []string{"components", "key components", "core components"}},
	Section{Key: "complexities", Aliases: []string{"complexities", "challenges", "key challenges"}},
	Section{Key: "strategies", Aliases: []string{"strategies", "strategy", "preliminary strategies", "initial strategies"}},
	Section{Key: "summary", Aliases: []string{"summary", "progress summary"}},
	Section{Key: "next_steps", Aliases: []string{"next steps", "recommended next steps"}},
)

var criticParser = NewParser(
	Section{Key: "strengths", Aliases: []string{"strengths"}},
	Section{Key: "weaknesses", Aliases: []string{"weaknesses"}},
	Section{Key: "improvements", Aliases: []string{"improvements", "suggested improvements", "areas for improvement"}},
	Section{Key: "overall_assessment", Aliases: []string{"overall assessment", "assessment"}},
)

var expertParser = NewParser(
	Section{Key: "key_concepts", Aliases: []string{"key concepts", "concepts"}},
	Section{Key: "considerations", Aliases: []string{"considerations", "key considerations"}},
	Section{Key: "best_practices", Aliases: []string{"best practices"}},
	Section{Key: "opportunities", Aliases: []string{"opportunities"}},
	Section{Key: "recommendations", Aliases: []string{"recommendations"}},
)

// Continuity keeps the discussion coherent; it decomposes, coordinates
// and summarizes.
type Continuity struct{ *base }

// NewContinuity creates a continuity agent.
func NewContinuity(cfg Config) *Continuity {
	return &Continuity{newBase(RoleContinuity, ContinuityName, cfg, continuitySystemPrompt, continuityInstructions, continuityParser)}
}

// Critic evaluates a proposed solution.
type Critic struct{ *base }

// NewCritic creates a critical-analysis agent.
func NewCritic(cfg Config) *Critic {
	return &Critic{newBase(RoleCriticalAnalysis, CriticName, cfg, criticSystemPrompt, criticInstructions, criticParser)}
}

// DomainExpert contributes the perspective of one domain.
type DomainExpert struct {
	*base
	domain string
}

// NewDomainExpert creates an expert for domain. description is a one-line
// summary of the domain used in the system prompt.
func NewDomainExpert(domain, description string, cfg Config) *DomainExpert {
	if description == "" {
		description = fmt.Sprintf("Specialist knowledge of %s.", domain)
	}
	system := fmt.Sprintf("You are an expert in %s in a multi-expert problem-solving process.\n%s\n"+
		"Ground your advice in established practice within this domain.", domain, description)
	return &DomainExpert{
		base:   newBase(RoleDomainExpert, domain+" Expert", cfg, system, expertInstructions, expertParser),
		domain: domain,
	}
}

// Domain returns the expert's domain.
func (d *DomainExpert) Domain() string { return d.domain }

var (
	_ Agent = (*Continuity)(nil)
	_ Agent = (*Critic)(nil)
	_ Agent = (*DomainExpert)(nil)
)
