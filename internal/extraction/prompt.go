package extraction

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"service-intake/internal/models"
)

// PromptInput is everything needed to build one extractor prompt.
type PromptInput struct {
	Message      string
	History      []string
	ServiceCodes []string
	ZoneCodes    []string
	Current      models.RequestInfo
	Hints        models.RetryHints
}

const (
	charsPerToken  = 4
	shrunkHistory  = 2
	defaultHistory = 10
)

const instructions = `Tu es un assistant qui extrait une demande de service à domicile.
Réponds UNIQUEMENT avec un objet JSON contenant les champs:
service_code, zone_code, service_type, location, description, urgency (low|medium|high|urgent),
scheduling_preference, preferred_time_details, landmark_references (liste), price_estimate (FCFA),
confidence (0-1), location_confidence (0-1).
Laisse vide un champ absent du message. N'invente rien.`

// BuildPrompt renders the extractor prompt. A MaxTokens hint shrinks the
// history and truncates the message; ExtraContext is appended verbatim.
func BuildPrompt(in PromptInput) string {
	history := in.History
	limit := defaultHistory
	if in.Hints.MaxTokens > 0 {
		limit = shrunkHistory
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	message := in.Message
	if in.Hints.MaxTokens > 0 {
		message = truncate(message, in.Hints.MaxTokens*charsPerToken)
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")

	if len(in.ServiceCodes) > 0 {
		fmt.Fprintf(&b, "Codes de service connus: %s\n", strings.Join(in.ServiceCodes, ", "))
	}
	if len(in.ZoneCodes) > 0 {
		fmt.Fprintf(&b, "Codes de zone connus: %s\n", strings.Join(in.ZoneCodes, ", "))
	}

	if !in.Current.IsEmpty() {
		fmt.Fprintf(&b, "Déjà connu: service=%q lieu=%q description=%q urgence=%q\n",
			in.Current.ServiceType, in.Current.Location, in.Current.Description, in.Current.Urgency)
	}

	if len(history) > 0 {
		b.WriteString("Historique:\n")
		for _, h := range history {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteString("\n")
		}
	}

	if in.Hints.ExtraContext != "" {
		fmt.Fprintf(&b, "La tentative précédente a échoué: %s\nRenvoie un JSON valide et plus court.\n", in.Hints.ExtraContext)
	}

	fmt.Fprintf(&b, "Message: %s\n", message)
	return b.String()
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars])
}
