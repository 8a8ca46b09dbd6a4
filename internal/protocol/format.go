package protocol

import "strings"

const (
	causedBy = "Caused by "
	indent   = "    "
)

// Format renders an error chain as a single message:
//
//	outer
//	    Caused by middle
//	        Caused by inner
//
// Every line of a nested message is indented so multi-line messages (stack
// traces) stay attached to their link. Chains of any length are rendered in
// full; a link seen before ends the output with "Caused by ...".
func Format(e *ErrorObject) string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(e.Message)

	seen := map[*ErrorObject]bool{e: true}
	pad := ""
	for cur := e.Cause; cur != nil; cur = cur.Cause {
		pad += indent
		b.WriteString("\n" + pad + causedBy)
		if seen[cur] {
			b.WriteString("...")
			break
		}
		seen[cur] = true
		b.WriteString(strings.ReplaceAll(cur.Message, "\n", "\n"+pad))
	}
	return b.String()
}
