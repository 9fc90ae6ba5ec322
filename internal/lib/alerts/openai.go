package alerts

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// SystemPrompt instructs the model to turn a raw hazard report into a driver notice
const SystemPrompt = `You write short road hazard notices for drivers who are already on the road.

Instructions:
- You receive the hazard type, an optional free-text location and the time it was reported.
- Write a single sentence a passenger could read aloud in under five seconds.
- Start with what the hazard is, then what the driver should do (slow down, expect delays, consider another route).
- Do NOT include coordinates, times or dates.
- Do NOT invent details such as injuries, lanes or vehicles that are not in the input.
- Keep it under 120 characters.

Good examples:
- Accident reported ahead, slow down and watch for emergency vehicles.
- Road blocked near Main St, expect delays or find another route.
- Debris on the road ahead, use caution.

Return a JSON object with a single "summary" string field.`

// AlertSummarySchema defines the JSON schema for structured summary output
var AlertSummarySchema = openai.ChatCompletionResponseFormatJSONSchema{
	Name:   "hazard_summary",
	Strict: true,
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"summary": {
				"type": "string",
				"maxLength": 120,
				"description": "One sentence driver-facing notice, no coordinates or times"
			}
		},
		"required": ["summary"],
		"additionalProperties": false
	}`),
}
