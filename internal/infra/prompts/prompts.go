// Package prompts holds the system prompts and the user-content templates
// sent to the language models.
package prompts

import (
	"embed"
	"fmt"
	"strconv"
	"strings"

	"veritheo-bot/internal/domain/model"
)

//go:embed text/*.txt
var textFS embed.FS

func load(name string) string {
	b, err := textFS.ReadFile("text/" + name + ".txt")
	if err != nil {
		panic(fmt.Sprintf("prompts: missing %s: %v", name, err))
	}
	return strings.TrimSpace(string(b))
}

var (
	initial   = load("initial")
	verify    = load("verify")
	fallacy   = load("fallacy_detector")
	roast     = load("roast")
	heresy    = load("heresy")
	summarize = load("summarize")
)

// System returns the system prompt for a job kind.
func System(kind model.LLMJobKind) (string, error) {
	switch kind {
	case model.LLMJobKindAsk, model.LLMJobKindAskGroup:
		return initial, nil
	case model.LLMJobKindVerify:
		return verify, nil
	case model.LLMJobKindFallacy:
		return fallacy, nil
	case model.LLMJobKindRoast:
		return roast, nil
	case model.LLMJobKindHeresy:
		return heresy, nil
	}
	return "", fmt.Errorf("no prompt for kind %q", kind)
}

var analysisLead = map[model.LLMJobKind]string{
	model.LLMJobKindVerify:  "Analiza el siguiente mensaje a la luz de las instrucciones del sistema.",
	model.LLMJobKindFallacy: "Analiza el siguiente mensaje y enfócate únicamente en enumerar y describir falacias lógicas o retóricas.",
	model.LLMJobKindRoast:   "Rostiza el argumento usando el espectro teologico contrario y sigue las instrucciones del sistema.",
}

func contextLines(author, chat string) string {
	var lines []string
	if a := strings.TrimSpace(author); a != "" {
		lines = append(lines, "Autor o remitente: "+a)
	}
	if c := strings.TrimSpace(chat); c != "" {
		lines = append(lines, "Conversación: "+c)
	}
	return strings.Join(lines, "\n")
}

func joinParts(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

// AnalysisRequest builds the user turn for verify, fallacy_detector and roast.
func AnalysisRequest(kind model.LLMJobKind, message, author, chat string) (string, error) {
	lead, ok := analysisLead[kind]
	if !ok {
		return "", fmt.Errorf("no analysis template for kind %q", kind)
	}
	return joinParts(lead, contextLines(author, chat), "---", message, "---"), nil
}

// HeresyRequest builds the user turn listing the user's messages.
func HeresyRequest(messages []string, author, chat string) string {
	items := make([]string, len(messages))
	for i, m := range messages {
		items[i] = "- " + m
	}
	return joinParts(
		"Analiza los mensajes y determina la herejía histórica cuyo espíritu más se alinea con el usuario.",
		"Sigue estrictamente las instrucciones del sistema.",
		contextLines(author, chat),
		"---",
		"Mensajes del usuario:",
		strings.Join(items, "\n"),
		"---",
	)
}

// SummarySystem is the summarizer system prompt bound to a character limit.
func SummarySystem(limit int) string {
	return strings.ReplaceAll(summarize, "{{limit}}", strconv.Itoa(limit))
}

func SummaryRequest(text string, limit int) string {
	return strings.Join([]string{
		fmt.Sprintf("Redacta un resumen en español que no supere %d caracteres (incluyendo espacios).", limit),
		"Conserva la intención original y señala relaciones clave entre ideas.",
		"Texto a resumir:",
		text,
	}, "\n\n")
}
