package effect

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// BuildEffectsSummary renders a human-readable digest of the active effects
// for narrative generation. The order matches registration order.
func (r *Registry) BuildEffectsSummary() string {
	active := r.ActiveEffects()
	if len(active) == 0 {
		return "No active rule effects."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active rule effects (%d):\n", len(active))
	for _, e := range active {
		fmt.Fprintf(&b, "- %s on %s (%s)", describeType(e.EffectType), describeHooks(e.HookPoints), describeLifetime(e))
		if e.Condition != "" {
			fmt.Fprintf(&b, " when %s", e.Condition)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeType(effectType string) string {
	if effectType == "" {
		return "Effect"
	}
	return titleCaser.String(strings.ReplaceAll(effectType, "_", " "))
}

func describeHooks(hooks []string) string {
	if len(hooks) == 0 {
		return "no hooks yet"
	}
	titled := make([]string, len(hooks))
	for i, hook := range hooks {
		titled[i] = titleCaser.String(strings.ReplaceAll(hook, "_", " "))
	}
	return strings.Join(titled, ", ")
}

func describeLifetime(e Effect) string {
	switch e.Lifetime {
	case LifetimeNRounds:
		if e.RoundsRemaining == 1 {
			return "1 round remaining"
		}
		return fmt.Sprintf("%d rounds remaining", e.RoundsRemaining)
	case LifetimeOneGame:
		return "next game only"
	case LifetimeUntilRepealed:
		return "until repealed"
	default:
		return "permanent"
	}
}
