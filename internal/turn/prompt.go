package turn

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/dentalink/consult/domain/entities"
)

var (
	schemaOnce sync.Once
	schemaJSON string
	schemaErr  error
)

// Schema returns the JSON schema of a structured turn
func Schema() (string, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			DoNotReference:             true,
			ExpandedStruct:             true,
			AllowAdditionalProperties:  true,
			RequiredFromJSONSchemaTags: false,
		}
		s := r.Reflect(&entities.Turn{})
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			schemaErr = fmt.Errorf("failed to marshal turn schema: %w", err)
			return
		}
		schemaJSON = string(b)
	})
	return schemaJSON, schemaErr
}

var stageInstructions = map[entities.TriageState]string{
	entities.TriageStateIntake: "Stage: intake. Greet the patient briefly and ask what brings them in. " +
		"Reply with a question turn.",
	entities.TriageStateClarifying: "Stage: clarifying. Ask at most three short follow-up questions as a numbered list, " +
		"each ending with a question mark. Reply with a question turn and offer options where they help.",
	entities.TriageStateConclusion: "Stage: conclusion. Summarize the likely causes with probabilities, list next steps " +
		"and red flags, and end with a call to action to book a visit. Reply with a conclusion turn. " +
		"Use mode urgent with severity high when the patient describes an emergency.",
}

// SystemPrompt builds the instruction sent ahead of the conversation history
func SystemPrompt(state entities.TriageState) string {
	var b strings.Builder
	b.WriteString("You are a dental clinic intake assistant. You never diagnose with certainty; ")
	b.WriteString("you guide the patient toward an in-person consultation. Answer in the patient's language.\n\n")

	if instr, ok := stageInstructions[state]; ok {
		b.WriteString(instr)
		b.WriteString("\n\n")
	}

	b.WriteString("When replying with a structured turn, output a single JSON object matching this schema and nothing else:\n")
	if schema, err := Schema(); err == nil {
		b.WriteString(schema)
	}
	return b.String()
}
