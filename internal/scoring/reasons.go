package scoring

import (
	"fmt"
	"strings"
)

// Reasons renders a Result as short, user-facing sentences.
func Reasons(r Result) []string {
	var out []string
	b := r.Breakdown

	switch p := b[KeyPersonality]; {
	case p >= 0.8:
		out = append(out, "Very strong personality compatibility")
	case p >= 0.65:
		out = append(out, "Good personality compatibility")
	case p >= 0.5:
		out = append(out, "Promising personality compatibility")
	}

	if b[KeyCommunication] >= 0.75 {
		out = append(out, "Compatible communication styles")
	}
	if b[KeyLifestyle] >= 0.75 {
		out = append(out, "Similar lifestyles")
	}

	if n := len(r.SharedInterests); n > 0 {
		if b[KeyInterests] >= 0.7 {
			out = append(out, "Shared interests: "+strings.Join(r.SharedInterests[:min(n, 3)], ", "))
		} else if b[KeyInterests] >= 0.5 {
			out = append(out, fmt.Sprintf("%d interests in common", n))
		}
	}

	switch v := b[KeyValues]; {
	case v >= 0.8:
		out = append(out, "Closely aligned life values")
	case v >= 0.65:
		out = append(out, "Compatible life values")
	}

	if b[KeyActivity] >= 0.8 {
		out = append(out, "Both recently active")
	}

	if len(out) == 0 {
		out = append(out, "An interesting profile to discover")
	}
	return out
}
