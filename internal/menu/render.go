package menu

import (
	"fmt"
	"strings"
)

// Render draws node key as plain text for v. prefix is the command marker
// shown in the footer hints.
func (c *Catalog) Render(key string, v Viewer, prefix string) string {
	n, ok := c.nodes[key]
	if !ok {
		n = c.nodes[c.root]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n\n", n.Emoji, n.Title)

	visible := c.Visible(n.Key, v)
	if len(visible) == 0 {
		sb.WriteString("Nothing here right now.\n")
	}
	for i, ch := range visible {
		if ch.Emoji != "" {
			fmt.Fprintf(&sb, "%s [%d] %s\n", ch.Emoji, i+1, ch.Label)
		} else {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, ch.Label)
		}
	}

	sb.WriteString("\n")
	if n.Key == c.root {
		fmt.Fprintf(&sb, "%shelp ❓  %sadmin 👑", prefix, prefix)
	} else {
		fmt.Fprintf(&sb, "%sback ←  %smenu 🏠", prefix, prefix)
	}
	return sb.String()
}
