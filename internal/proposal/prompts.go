package proposal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/rfpd/internal/storage"
)

const notSpecified = "Not specified"

// BuildParsePrompt asks the model to structure one vendor reply against the
// items the RFP requested.
func BuildParsePrompt(emailContent string, items []storage.Item) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%d. %s (Qty: %s) - %s", i+1, item.Name, item.Quantity, item.Specifications)
	}

	return `You are an expert at parsing vendor proposals and extracting structured pricing and terms information.

Analyze the following vendor proposal email and extract all relevant information into a structured JSON format.

Original RFP Items Requested:
` + strings.Join(lines, "\n") + `

Vendor Email Content:
` + emailContent + `

Extract the following information:
1. Line Items - An array matching the RFP items with:
   - itemName: Name of the item (match to RFP item)
   - price: Price per unit or total
   - quantity: Quantity offered
   - specifications: Any specifications or notes
2. Total Cost - Total cost of the proposal
3. Delivery Terms - Delivery timeline and terms
4. Payment Terms - Payment terms offered
5. Warranty - Warranty information provided
6. Completeness Score - A score from 0 to 1 indicating how complete the proposal is (1 = fully addresses all RFP items, 0 = missing critical information)

Return ONLY a valid JSON object with this structure:
{
  "lineItems": [
    {
      "itemName": "string",
      "price": "string",
      "quantity": "string",
      "specifications": "string or null"
    }
  ],
  "totalCost": "string or null",
  "deliveryTerms": "string or null",
  "paymentTerms": "string or null",
  "warranty": "string or null",
  "completenessScore": number
}

Do not include any markdown formatting, explanations, or additional text. Return only the JSON object.`
}

// VendorProposal is one proposal as presented to the recommendation prompt.
type VendorProposal struct {
	VendorName string
	Proposal   storage.Proposal
}

// BuildRecommendationPrompt asks the model to compare proposals and pick one.
func BuildRecommendationPrompt(rfpTitle string, proposals []VendorProposal) string {
	blocks := make([]string, len(proposals))
	for i, vp := range proposals {
		p := vp.Proposal
		score := "0"
		if p.CompletenessScore != nil && *p.CompletenessScore != 0 {
			score = strconv.FormatFloat(*p.CompletenessScore, 'f', -1, 64)
		}
		blocks[i] = fmt.Sprintf("\nVendor %d: %s\n- Total Cost: %s\n- Delivery Terms: %s\n- Payment Terms: %s\n- Warranty: %s\n- Completeness Score: %s",
			i+1, vp.VendorName,
			orNotSpecified(p.TotalCost),
			orNotSpecified(p.DeliveryTerms),
			orNotSpecified(p.PaymentTerms),
			orNotSpecified(p.Warranty),
			score,
		)
	}

	return `You are an expert procurement analyst. Analyze the following vendor proposals for an RFP and provide a recommendation.

RFP Title: ` + rfpTitle + `

Vendor Proposals:
` + strings.Join(blocks, "\n") + `

Analyze each proposal considering:
1. Price competitiveness
2. Delivery timeline
3. Payment terms favorability
4. Warranty coverage
5. Completeness of response
6. Overall value proposition

Return ONLY a valid JSON object with this structure:
{
  "recommendedVendor": "string (vendor name)",
  "reasoning": "string (2-3 sentences explaining why this vendor was recommended)",
  "summary": {
    "vendorName": "string",
    "strengths": ["string", "string"],
    "concerns": ["string", "string"] or null
  }
}

Do not include any markdown formatting, explanations, or additional text. Return only the JSON object.`
}

func orNotSpecified(s string) string {
	if s == "" {
		return notSpecified
	}
	return s
}
