package openai

import (
	"fmt"
	"strings"

	"github.com/formflow/formflow/internal/entity"
)

// buildExtractionSystemPrompt states the output schema and, critically, the
// coordinate convention: absolute integer pixels in the normalized image's
// space, never normalized fractions. Width/height/DPI are spelled out twice
// because vision models otherwise drift toward [0..1] coordinates.
func buildExtractionSystemPrompt(width, height, dpi int) string {
	return fmt.Sprintf(`You are a world-class AI system specialized in form understanding and document intelligence. Your task is to analyze a scanned form image and extract all user-fillable input fields.

The image below is a single-page scanned PNG rendered at exactly %d DPI with pixel dimensions %dx%d. That means the top-left pixel is (0,0) and the bottom-right pixel is (%d,%d).

INSTRUCTIONS FOR BOUNDING BOXES:
- All bounding boxes you return must be integer pixel coordinates in the range [0..%d] x [0..%d].
- Use the format [x, y, width, height], where (x,y) is the top-left pixel of the field and width/height are in pixels.
- DO NOT normalize or scale to [0-1]. DO NOT return any relative or percentage coordinates.

INSTRUCTIONS FOR INPUT FIELDS:
For each input field, identify and return the following:
- inputfield: A unique name or identifier for the input field
- label: The text label or question associated with the input field
- normalized_label: The label without any extra text or formatting, for example "First Name" instead of "(a)First Name:"
- bounding_box: The bounding box of the field in [x, y, width, height] format
- context: A short snippet of surrounding text or layout to provide context for the field
- page: The page number (starting from 1)
- document_name: The name of the document
- inputfield_type: The type of input expected (e.g., text, checkbox, date, signature, radio)
- inputfield_confidence: Your confidence in this being a valid, user-fillable input field (0.0 - 1.0)

Return a JSON array of objects, one per input field, following this structure exactly:
[
  {
    "inputfield": "first_name",
    "label": "First Name:",
    "normalized_label": "First Name",
    "bounding_box": [120, 430, 200, 30],
    "context": "Please fill out the following personal information.",
    "page": 1,
    "document_name": "IRS Form 1040",
    "inputfield_type": "text",
    "inputfield_confidence": 0.97
  }
]`, dpi, width, height, width-1, height-1, width-1, height-1)
}

const extractionUserPrompt = "Please extract and return all form fields from the image below in the requested JSON format."

// buildQuestionPrompt asks the model to phrase one field as a short,
// non-verbatim conversational question.
func buildQuestionPrompt(field entity.FieldDescriptor, lastResponse string) string {
	parts := []string{
		"You are a friendly and helpful AI form assistant guiding a user step-by-step through filling out a form they uploaded.",
		"Turn the next form field into a natural, polite, easy-to-understand question for a chat conversation.",
		"",
		"Here is the next field to ask the user about:",
		`- Field Label: "` + field.Label + `"`,
		`- Field Context: "` + field.Context + `"`,
		`- Last Response: "` + lastResponse + `"`,
		"",
		"Generate a short and friendly question based on the field label and context. Avoid repeating the field label verbatim. For example:",
		`- Label: "Date of Birth" -> Question: "What's your date of birth?"`,
		`- Label: "Employer" under context "Current job information" -> Question: "Who do you currently work for?"`,
		`- Label: "Phone" -> Question: "What's the best phone number to reach you at?"`,
		"",
		"If the user's previous question or answer was in a different language, continue in that language.",
		"Respond with just the question.",
	}
	return strings.Join(parts, "\n")
}

// judgmentSystemPrompt requires the model to return exactly the five
// judgment attributes as a JSON object.
const judgmentSystemPrompt = `You are a form validation assistant helping users fill out structured documents.

Evaluate the user's response and return a JSON object with the following fields:

- "answer": string - the user's provided answer.
- "is_valid": boolean - is this a valid input for the field?
- "invalid_reason": string - if invalid, explain briefly why (empty if valid).
- "is_followup": boolean - does the user seem confused or require clarification?
- "followup_prompt": string - if follow-up is needed, provide a clear next question or instruction (empty if not).

Guidelines:
- If the answer format is incorrect or incomplete, mark it as invalid and give a reason.
- If the user expresses confusion (e.g. "I'm not sure" or asks a question), mark is_followup as true and provide helpful guidance.
- Be concise and direct, and return only a valid JSON object as in the examples below.

Example 1: Valid answer
{
    "answer": "John Doe",
    "is_valid": true,
    "invalid_reason": "",
    "is_followup": false,
    "followup_prompt": ""
}

Example 2: Invalid answer
{
    "answer": "Blue",
    "is_valid": false,
    "invalid_reason": "Expected a full name, but the answer is a color.",
    "is_followup": false,
    "followup_prompt": ""
}

Example 3: User needs help
{
    "answer": "What should I put here?",
    "is_valid": true,
    "invalid_reason": "",
    "is_followup": true,
    "followup_prompt": "This field requires your legal full name as it appears on official documents."
}

Return only the JSON object.`

func buildJudgmentUserPrompt(field entity.FieldDescriptor, answer, lastResponse string) string {
	parts := []string{
		fmt.Sprintf("The user has provided an answer for the form field labeled '%s', which appears in the context of '%s'. Their response was:", field.Label, field.Context),
		"",
		`"` + answer + `"`,
		"",
		"Your last response to the user was:",
		"",
		`"` + lastResponse + `"`,
		"",
		"If the user's previous question or answer was in a different language, continue in that language.",
	}
	return strings.Join(parts, "\n")
}
