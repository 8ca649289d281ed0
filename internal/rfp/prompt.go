package rfp

import "strings"

const extractionPromptTemplate = `You are an expert at analyzing procurement requirements and extracting structured RFP (Request for Proposal) information.

Analyze the following procurement request and extract all relevant information into a structured JSON format.

User Input:
{{input}}

Extract the following information:
1. Title - A clear, concise title for this RFP
2. Description - A brief description of what is being procured
3. Items - An array of items with:
   - name: Item name
   - quantity: Number/amount needed
   - specifications: Technical or detailed requirements
4. Budget - Budget range or amount (if mentioned)
5. Delivery Timeline - Expected delivery date or timeline
6. Payment Terms - Payment terms (if mentioned)
7. Warranty - Warranty requirements (if mentioned)

Return ONLY a valid JSON object with this structure:
{
  "title": "string",
  "description": "string",
  "items": [
    {
      "name": "string",
      "quantity": "string",
      "specifications": "string"
    }
  ],
  "budget": "string or null",
  "deliveryTimeline": "string or null",
  "paymentTerms": "string or null",
  "warranty": "string or null"
}

Do not include any markdown formatting, explanations, or additional text. Return only the JSON object.`

// BuildPrompt embeds the user's free-text request in the extraction prompt.
func BuildPrompt(input string) string {
	return strings.Replace(extractionPromptTemplate, "{{input}}", input, 1)
}
