package coref

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/llm"
	"github.com/pauubach/narrassist/internal/types"
)

// LLMMethod asks a local model which candidate the anaphor refers to
// and parses a structured response. An unavailable backend makes the
// method abstain; it is never a failure.
type LLMMethod struct {
	client llm.Client
	logger *zap.Logger
}

func NewLLMMethod(client llm.Client, logger *zap.Logger) *LLMMethod {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMMethod{client: client, logger: logger}
}

func (m *LLMMethod) Name() string { return MethodLLM }

var (
	reChosen     = regexp.MustCompile(`(?i)CANDIDATO:\s*(\d+)`)
	reConfidence = regexp.MustCompile(`(?i)CONFIANZA:\s*([0-9]*\.?[0-9]+)`)
	reJustify    = regexp.MustCompile(`(?i)JUSTIFICACI[OÓ]N:\s*(.+)`)
)

func (m *LLMMethod) Score(ctx context.Context, anaphor *types.Mention, candidates []*types.Mention, doc *Document) (Scores, error) {
	if m.client == nil || len(candidates) == 0 || !m.client.Available(ctx) {
		return Scores{}, nil
	}

	excerpt := llm.Sanitize(surrounding(doc.Text, anaphor, 400), 1200)

	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %q (posición %d)\n", i+1, c.Surface, c.StartChar)
	}

	prompt := fmt.Sprintf(`Analiza esta anáfora en un texto narrativo en español.

TEXTO:
%s

ANÁFORA: %q (posición %d)

CANDIDATOS:
%s
PREGUNTA: ¿A qué candidato se refiere la anáfora?

Responde en formato:
CANDIDATO: [número]
CONFIANZA: [0.0-1.0]
JUSTIFICACIÓN: [una frase]`, excerpt, anaphor.Surface, anaphor.StartChar, sb.String())

	response, err := m.client.Complete(ctx, llm.CompletionRequest{
		System:    "Eres un experto en resolución de correferencias en español. Responde con precisión y en el formato pedido.",
		Prompt:    prompt,
		MaxTokens: 150,
	})
	if err != nil {
		m.logger.Debug("llm coref call failed, abstaining", zap.Error(err))
		return Scores{}, nil
	}

	chosen, confidence, justification := parseLLMVote(response, len(candidates))
	if chosen < 0 {
		return Scores{}, nil
	}

	scores := make(Scores, len(candidates))
	for i := range candidates {
		if i == chosen {
			scores[i] = Score{Value: confidence, Reasoning: justification}
		} else {
			scores[i] = Score{Value: 0, Reasoning: "no elegido por el modelo"}
		}
	}
	return scores, nil
}

// parseLLMVote extracts (candidate index, confidence, justification)
// from the structured response; returns index -1 when unparseable.
func parseLLMVote(response string, n int) (int, float64, string) {
	mChosen := reChosen.FindStringSubmatch(response)
	if mChosen == nil {
		return -1, 0, ""
	}
	num, err := strconv.Atoi(mChosen[1])
	if err != nil || num < 1 || num > n {
		return -1, 0, ""
	}

	confidence := 0.8
	if mc := reConfidence.FindStringSubmatch(response); mc != nil {
		if v, err := strconv.ParseFloat(mc[1], 64); err == nil && v >= 0 && v <= 1 {
			confidence = v
		}
	}

	justification := "elegido por el modelo"
	if mj := reJustify.FindStringSubmatch(response); mj != nil {
		justification = strings.TrimSpace(mj[1])
	}
	return num - 1, confidence, justification
}

func surrounding(text string, m *types.Mention, window int) string {
	start := m.StartChar - window
	if start < 0 {
		start = 0
	}
	end := m.EndChar + window
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
