package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"glint/provider"
)

const titleInstructions = "You generate titles for chat conversations. " +
	"Reply with a short title for the user's message, at most five words, " +
	"in the same language as the message, in title case, without quotes " +
	"or punctuation around it. Reply with the title only."

const maxTitleLength = 50

const titleTimeout = 30 * time.Second

// TitleGenerator produces short conversation titles through one
// long-lived auxiliary session. It is best-effort cosmetic enrichment:
// failures and invalid results are dropped silently and the caller's
// fallback title stands.
type TitleGenerator struct {
	session provider.Session
	log     zerolog.Logger
}

func NewTitleGenerator(p provider.Provider, log zerolog.Logger) *TitleGenerator {
	return &TitleGenerator{
		session: p.NewSession(provider.SessionConfig{Instructions: titleInstructions}),
		log:     log,
	}
}

// Generate asks the model for a title. The second return is false when
// generation failed or the result did not validate.
func (g *TitleGenerator) Generate(ctx context.Context, firstUserMessage string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	raw, err := g.session.Respond(ctx, firstUserMessage, 0.3)
	if err != nil {
		g.log.Debug().Err(err).Msg("title generation failed")
		return "", false
	}
	title, ok := validateTitle(raw)
	if !ok {
		g.log.Debug().Str("raw", raw).Msg("generated title rejected")
	}
	return title, ok
}

// validateTitle trims and unquotes the model output and rejects empty or
// overlong results.
func validateTitle(raw string) (string, bool) {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'“”‘’")
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return "", false
	}
	return title, true
}
