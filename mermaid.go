package codescope

import (
	"fmt"
	"strings"
)

// Mermaid renders the workflow topology as a Mermaid flowchart.
func (w *Workflow) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString("    __start__([start]) --> dispatcher\n")
	for _, label := range w.Labels() {
		id := mermaidID(label) + "_agent"
		fmt.Fprintf(&b, "    dispatcher --> %s[%q]\n", id, label)
	}
	for _, label := range w.Labels() {
		fmt.Fprintf(&b, "    %s_agent --> synthesizer\n", mermaidID(label))
	}
	b.WriteString("    synthesizer --> __end__([end])\n")
	return b.String()
}

// mermaidID maps a label to a node id made of letters, digits and underscores.
func mermaidID(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, label)
}
