// Package synthesizer turns a paper, its prior structured analysis and its
// figures into a long-form markdown review. Generation walks an ordered
// model fallback chain and accepts the first output satisfying a
// completeness contract; when the whole chain fails, a deterministic
// template assembled from the prior analysis takes over and the document
// is flagged as degraded. Synthesis never fails outright: a paper always
// gets some document.
package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-pipeline-service/internal/domain"
	"github.com/helixir/research-pipeline-service/internal/llm"
	"github.com/helixir/research-pipeline-service/internal/observability"
)

// fullTextCap bounds how much cached full text rides along in the
// generation payload.
const fullTextCap = 40000

// Config holds synthesizer settings.
type Config struct {
	// PrimaryModel heads the fallback chain.
	PrimaryModel string
	// FallbackModel is the cheaper second attempt. Default: gpt-4.1-mini.
	FallbackModel string
	// MaxOutputTokens bounds each generation response.
	MaxOutputTokens int
	// Temperature is the sampling temperature.
	Temperature float64
}

// Synthesizer generates review documents through an llm.Completer.
type Synthesizer struct {
	completer llm.Completer
	cfg       Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// New creates a Synthesizer.
func New(completer llm.Completer, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Synthesizer {
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = "gpt-4.1-mini"
	}
	return &Synthesizer{
		completer: completer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "synthesizer").Logger(),
		metrics:   metrics,
	}
}

// attempt captures the outcome of one model in the chain.
type attempt struct {
	model  string
	body   string
	reason string
	err    error
}

// modelChain returns the ordered, de-duplicated models to try.
func (s *Synthesizer) modelChain() []string {
	primary := s.cfg.PrimaryModel
	if primary == "" {
		primary = s.completer.Model()
	}
	chain := []string{primary}
	if s.cfg.FallbackModel != "" && s.cfg.FallbackModel != primary {
		chain = append(chain, s.cfg.FallbackModel)
	}
	return chain
}

// Synthesize produces the full review document for one paper. The
// returned report is the prior analysis with Document, Tags and Degraded
// filled in. The error return is reserved for context cancellation; all
// generation failures degrade to the template instead.
func (s *Synthesizer) Synthesize(ctx context.Context, card domain.RunCard, prior domain.Report, figures []domain.Figure) (domain.Report, error) {
	logger := observability.WithPaperContext(s.logger, card.PaperID)

	chosen := pickFigures(figures)
	payload, err := s.buildUserPayload(card, prior)
	if err != nil {
		return prior, fmt.Errorf("failed to build generation payload: %w", err)
	}
	sysPrompt := buildSystemPrompt(chosen)

	var body string
	var tags []string
	var last attempt
	degraded := true

	for _, model := range s.modelChain() {
		if ctx.Err() != nil {
			return prior, ctx.Err()
		}
		a := s.tryModel(ctx, model, sysPrompt, payload)
		if a.err == nil && a.reason == "" {
			tags, body = parseTagLine(a.body)
			degraded = false
			break
		}
		last = a
		if a.err != nil {
			logger.Warn().Err(a.err).Str("model", model).Msg("generation attempt failed")
		} else {
			logger.Warn().Str("model", model).Str("reason", a.reason).Msg("generation output rejected")
			if s.metrics != nil {
				s.metrics.RecordContractRejection(model)
			}
		}
	}

	if degraded {
		body = renderTemplate(card, prior, chosen, degradeReason(last))
		logger.Info().Msg("falling back to template document")
	}

	body = NormalizeMathDelimiters(body)
	body = RepairImageRefs(body, chosen)
	body = ForceInsertFigures(body, chosen)

	report := prior
	report.Tags = tags
	report.Degraded = degraded
	report.Document = BuildDocument(card, body, tags, card.Similar)
	return report, nil
}

// tryModel runs one generation call and validates its output against the
// completeness contract.
func (s *Synthesizer) tryModel(ctx context.Context, model, sysPrompt, payload string) attempt {
	text, err := s.complete(ctx, model, sysPrompt, payload)
	if err != nil {
		return attempt{model: model, err: err}
	}
	text = NormalizeMathDelimiters(strings.TrimSpace(text))
	if ok, reason := ValidateDocument(text); !ok {
		return attempt{model: model, reason: fmt.Sprintf("incomplete output (%s): %s", model, reason)}
	}
	return attempt{model: model, body: text}
}

func (s *Synthesizer) complete(ctx context.Context, model, sysPrompt, payload string) (string, error) {
	start := time.Now()
	text, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Model:        model,
		SystemPrompt: sysPrompt,
		UserPayload:  payload,
		MaxTokens:    s.cfg.MaxOutputTokens,
		Temperature:  s.cfg.Temperature,
	})
	if s.metrics != nil {
		if err != nil {
			s.metrics.RecordLLMRequestFailed(model, llm.ErrorType(err))
		} else {
			s.metrics.RecordLLMRequest(model, time.Since(start).Seconds())
		}
	}
	return text, err
}

func degradeReason(last attempt) string {
	switch {
	case last.err != nil:
		return last.err.Error()
	case last.reason != "":
		return last.reason
	default:
		return "generation unavailable"
	}
}

// pickFigures keeps at most one method figure and one result figure,
// method first, topping up with the best remaining when a class is absent.
func pickFigures(figures []domain.Figure) []domain.Figure {
	var method, result *domain.Figure
	for i := range figures {
		switch figures[i].Kind {
		case domain.FigureKindMethod:
			if method == nil {
				method = &figures[i]
			}
		case domain.FigureKindResult:
			if result == nil {
				result = &figures[i]
			}
		}
	}
	picked := make([]domain.Figure, 0, 2)
	if method != nil {
		picked = append(picked, *method)
	}
	if result != nil {
		picked = append(picked, *result)
	}
	for i := range figures {
		if len(picked) >= 2 {
			break
		}
		dup := false
		for _, p := range picked {
			if p.URL == figures[i].URL {
				dup = true
				break
			}
		}
		if !dup {
			picked = append(picked, figures[i])
		}
	}
	return picked
}

// userPayload is the structured user-turn content for generation.
type userPayload struct {
	Title         string        `json:"title"`
	Venue         string        `json:"venue"`
	Date          string        `json:"date"`
	Abstract      string        `json:"abstract"`
	PriorAnalysis priorAnalysis `json:"prior_analysis"`
	FullText      string        `json:"full_text"`
}

type priorAnalysis struct {
	Methods    string `json:"methods"`
	Conclusion string `json:"conclusion"`
	Future     string `json:"future"`
	Value      string `json:"value"`
	Summary    string `json:"summary"`
}

func (s *Synthesizer) buildUserPayload(card domain.RunCard, prior domain.Report) (string, error) {
	fullText := card.SourceContent
	if len(fullText) > fullTextCap {
		fullText = fullText[:fullTextCap]
	}
	raw, err := json.Marshal(userPayload{
		Title:    card.Title,
		Venue:    card.Venue,
		Date:     card.PublicationDate,
		Abstract: card.Abstract,
		PriorAnalysis: priorAnalysis{
			Methods:    prior.MethodsDetailed,
			Conclusion: prior.MainConclusion,
			Future:     prior.FutureDirection,
			Value:      prior.ValueAssessment,
			Summary:    prior.Summary,
		},
		FullText: fullText,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// buildSystemPrompt assembles the generation instructions, including the
// available-figure block when figures were found.
func buildSystemPrompt(figures []domain.Figure) string {
	var b strings.Builder
	b.WriteString(
		"You are a senior researcher writing a comprehensive critical review of a paper. " +
			"Write ENTIRELY in English. Help readers understand quickly; avoid unnecessary complexity.\n\n" +
			"FIRST LINE: Output exactly one line in this format (choose 2-4 descriptive tags):\n" +
			"TAGS: tag1, tag2, tag3\n" +
			"Then output the review body (no YAML, no title line). Use ## for sections, ### for sub-sections.\n\n" +
			"REQUIRED SECTIONS, in this exact order with these exact titles, skip none:\n\n" +
			"## AI Summary\n" +
			"1 concise paragraph with the central idea, key result, and practical takeaway.\n\n" +
			"## Abstract\n" +
			"Rewrite the paper abstract in clearer language (1-2 paragraphs, factual, no hype).\n\n" +
			"## Method Details\n" +
			"This is the key section for understanding (about 180-260 words, clear and practical).\n" +
			"### Overall Framework\n" +
			"Explain the core pipeline and key technical idea in plain language.\n" +
			"### Technical Components\n" +
			"Describe important modules, objectives/losses, and training setup (only what is essential).\n" +
			"Include compact math only when it helps understanding. Render equations with LaTeX:\n" +
			"- Inline equations: $...$\n" +
			"- Display equations: $$...$$\n" +
			"Never output raw LaTeX without $ delimiters.\n" +
			"### Data and Experimental Setup\n" +
			"Datasets, split, key metrics, and strongest baseline comparisons.\n" +
			"Embed relevant figures directly in this section when available.\n\n" +
			"## Summary\n" +
			"Keep this short (80-150 words): what we learned and why it matters.\n\n" +
			"## Future Direction\n" +
			"List concrete future work directions (2-4 bullets) and why each matters.\n\n" +
			"## Pros and Cons\n" +
			"Use two subsections with bullet points:\n" +
			"### Pros\n" +
			"### Cons\n\n" +
			"DO NOT output any section for related work/articles; it will be appended separately.")

	if len(figures) > 0 {
		b.WriteString("\n\nAVAILABLE FIGURES (embed inline using Markdown image syntax):\n")
		for i, f := range figures {
			caption := f.Caption
			if caption == "" {
				caption = fmt.Sprintf("Figure %d", i+1)
			}
			fmt.Fprintf(&b, "Figure %d: %s\nURL: %s\n\n", i+1, caption, f.URL)
		}
		b.WriteString("INSTRUCTION: Embed only relevant figures INLINE inside the content sections " +
			"(especially Method Details and Summary) using:\n" +
			"![Figure N: caption](url)\n" +
			"Place each figure immediately after the paragraph that discusses it. " +
			"Do NOT create a standalone figures-only section.\n")
	}
	return b.String()
}

// renderTemplate assembles the deterministic fallback document from the
// prior structured analysis. No generation call is involved.
func renderTemplate(card domain.RunCard, prior domain.Report, figures []domain.Figure, reason string) string {
	var parts []string
	if reason != "" {
		parts = append(parts, fmt.Sprintf("> ⚠️ AI deep generation failed, fallback content is shown. Error: `%s`", reason))
	}
	if prior.Summary != "" {
		parts = append(parts, "## AI Summary\n\n"+prior.Summary)
	}
	parts = append(parts, "## Abstract\n\n"+card.Abstract)

	methodText := prior.MethodsDetailed
	if methodText == "" {
		methodText = "AI deep generation did not return sufficient methodological detail. " +
			"Please regenerate this report after confirming model/key availability."
	}
	if len(figures) > 0 {
		var figLines []string
		for i, f := range figures {
			caption := f.Caption
			if caption == "" {
				caption = fmt.Sprintf("Figure %d", i+1)
			}
			figLines = append(figLines, fmt.Sprintf("![%s](%s)", caption, f.URL))
		}
		methodText += "\n\n" + strings.Join(figLines, "\n\n")
	}
	parts = append(parts, "## Method Details\n\n"+methodText)

	if prior.MainConclusion != "" {
		parts = append(parts, "## Summary\n\n"+prior.MainConclusion)
	}
	if prior.FutureDirection != "" {
		parts = append(parts, "## Future Direction\n\n"+prior.FutureDirection)
	}

	pros := "- Strengths are promising but not explicitly extracted in fallback mode."
	cons := "- Weaknesses need manual review if AI value assessment is unavailable."
	if prior.ValueAssessment != "" {
		pros = "- " + prior.ValueAssessment
		cons = "- Requires deeper critical comparison with stronger baselines."
	}
	parts = append(parts, fmt.Sprintf("## Pros and Cons\n\n### Pros\n\n%s\n\n### Cons\n\n%s", pros, cons))

	return strings.Join(parts, "\n\n")
}
