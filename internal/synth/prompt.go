package synth

import (
	"fmt"
	"strings"

	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/schema"
)

// BuildPrompt assembles the drafting prompt from the schema description, the
// question, the engine tag, and any prior conversation text.
func BuildPrompt(engine gateway.EngineTag, snap *schema.Snapshot, question, conversation string) string {
	var b strings.Builder

	if engine == gateway.EngineMongo {
		b.WriteString("You translate questions into MongoDB read pipelines.\n")
		b.WriteString("Answer with exactly one expression of the form <collection>.find(<filter>) ")
		b.WriteString("or <collection>.aggregate(<stages>). Read-only stages only.\n")
	} else {
		fmt.Fprintf(&b, "You translate questions into a single %s SELECT statement.\n", engine)
		b.WriteString("Answer with the statement only. Never modify data.\n")
	}

	b.WriteString("\nSchema:\n")
	b.WriteString(snap.Describe())

	if conversation != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(conversation)
		b.WriteByte('\n')
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteByte('\n')
	return b.String()
}

// RepairPrompt extends the original prompt with the literal error text and
// engine-compatibility hints for one repair cycle.
func RepairPrompt(original, badQuery, errText string, engine gateway.EngineTag, snap *schema.Snapshot) string {
	var b strings.Builder
	b.WriteString(original)

	fmt.Fprintf(&b, "\nYour previous answer failed.\nAnswer: %s\nError: %s\n", badQuery, errText)

	b.WriteString("Rules for the corrected answer:\n")
	if engine != gateway.EngineMongo {
		b.WriteString("- at most one common-table-expression\n")
		switch engine {
		case gateway.EnginePostgres:
			b.WriteString("- quote mixed-case identifiers with double quotes\n")
		case gateway.EngineMySQL, gateway.EngineMariaDB:
			b.WriteString("- quote identifiers with backticks\n")
		}
	}
	if hints := enumHints(snap); hints != "" {
		b.WriteString("- use only these declared values instead of guessing literals:\n")
		b.WriteString(hints)
	}
	return b.String()
}

// enumHints lists every declared enum value set in the schema so a repaired
// query picks from allowed values rather than substituting a guess.
func enumHints(snap *schema.Snapshot) string {
	if snap == nil {
		return ""
	}
	var b strings.Builder
	for _, t := range snap.Tables {
		for _, c := range t.Columns {
			if len(c.EnumValues) > 0 {
				fmt.Fprintf(&b, "  %s.%s: %s\n", t.Name, c.Name, strings.Join(c.EnumValues, ", "))
			}
		}
	}
	return b.String()
}
