package queries

import (
	"fmt"
	"strings"

	"github.com/growthsignal/leadscout/internal/leadgen"
)

// BuildPrompt composes the single instruction sent to every provider. It
// demands a bare JSON array so the shared validator can parse any
// provider's output without per-provider cleanup beyond fence stripping.
func BuildPrompt(p leadgen.RunParameters) string {
	var sb strings.Builder
	sb.WriteString("Generate 3 to 5 short search phrases (2-5 words each) ")
	fmt.Fprintf(&sb, "for finding %s businesses", p.Sector)
	if loc := p.Location(); loc != "" {
		fmt.Fprintf(&sb, " in %s", loc)
	}
	if kw := strings.TrimSpace(p.Keyword); kw != "" {
		fmt.Fprintf(&sb, ". Focus on the keyword %q", kw)
	}
	sb.WriteString(". Respond with a bare JSON array of strings only, ")
	sb.WriteString("no markdown, no explanation, no surrounding prose.")
	return sb.String()
}
