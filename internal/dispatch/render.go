package dispatch

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/kalambet/rfpd/internal/inbound"
	"github.com/kalambet/rfpd/internal/storage"
)

const htmlBody = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; line-height: 1.6; color: #333333; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #ffffff;">
  <div style="background-color: #f8f9fa; padding: 24px; border-radius: 8px; margin-bottom: 24px; border-left: 4px solid #0066cc;">
    <h1 style="color: #1a1a1a; margin: 0 0 8px 0; font-size: 24px; font-weight: 600;">Request for Proposal</h1>
    <h2 style="color: #333333; margin: 0; font-size: 20px; font-weight: 500;">{{.Title}}</h2>
  </div>
{{if .Description}}
  <div style="margin-bottom: 24px; padding: 16px; background-color: #f8f9fa; border-radius: 6px;">
    <p style="margin: 0 0 8px 0; font-weight: 600; color: #1a1a1a;">Description:</p>
    <p style="margin: 0; color: #666666;">{{.Description}}</p>
  </div>
{{end}}
  <div style="margin-bottom: 24px;">
    <h3 style="color: #1a1a1a; font-size: 18px; font-weight: 600; margin-bottom: 12px;">Items Requested:</h3>
    <ul style="padding-left: 20px; margin: 0;">
{{- range .Items}}
      <li style="margin-bottom: 12px; color: #333333;">
        <strong style="color: #1a1a1a;">{{.Name}}</strong> - Quantity: {{.Quantity}}
        {{- if .Specifications}}
        <br/><span style="color: #666666; font-size: 14px; display: block; margin-top: 4px;">Specifications: {{.Specifications}}</span>
        {{- end}}
      </li>
{{- end}}
    </ul>
  </div>

  <div style="background-color: #f8f9fa; padding: 16px; border-radius: 6px; margin-bottom: 24px;">
{{- if .Budget}}
    <p style="margin: 8px 0; color: #333333;"><strong style="color: #1a1a1a;">Budget:</strong> {{.Budget}}</p>
{{- end}}
{{- if .DeliveryTimeline}}
    <p style="margin: 8px 0; color: #333333;"><strong style="color: #1a1a1a;">Delivery Timeline:</strong> {{.DeliveryTimeline}}</p>
{{- end}}
{{- if .PaymentTerms}}
    <p style="margin: 8px 0; color: #333333;"><strong style="color: #1a1a1a;">Payment Terms:</strong> {{.PaymentTerms}}</p>
{{- end}}
{{- if .Warranty}}
    <p style="margin: 8px 0; color: #333333;"><strong style="color: #1a1a1a;">Warranty Requirements:</strong> {{.Warranty}}</p>
{{- end}}
  </div>

  <p style="margin-top: 32px; padding-top: 20px; border-top: 1px solid #e0e0e0; color: #666666; font-size: 14px;">
    Please submit your proposal by replying to this email.
  </p>
</body>
</html>
`

const textBody = `Request for Proposal: {{.Title}}

{{if .Description}}Description:
{{.Description}}

{{end}}Items Requested:
{{range $i, $item := .Items}}{{if $i}}
{{end}}- {{$item.Name}} (Quantity: {{$item.Quantity}}){{if $item.Specifications}}
  Specifications: {{$item.Specifications}}{{end}}{{end}}

{{if .Budget}}Budget: {{.Budget}}
{{end}}{{if .DeliveryTimeline}}Delivery Timeline: {{.DeliveryTimeline}}
{{end}}{{if .PaymentTerms}}Payment Terms: {{.PaymentTerms}}
{{end}}{{if .Warranty}}Warranty Requirements: {{.Warranty}}
{{end}}
Please submit your proposal by replying to this email.`

var (
	htmlTmpl = htmltemplate.Must(htmltemplate.New("rfp.html").Parse(htmlBody))
	textTmpl = texttemplate.Must(texttemplate.New("rfp.txt").Parse(textBody))
)

// Rendered is the subject and bodies of an outbound RFP email. It is the
// same for every recipient.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Subject returns the outbound subject line carrying the RFP reference tag.
func Subject(rfp storage.RFP) string {
	return strings.TrimSpace(rfp.Title) + " " + inbound.FormatRefTag(rfp.ID)
}

// Render builds the email for rfp.
func Render(rfp storage.RFP) (Rendered, error) {
	var h, t bytes.Buffer
	if err := htmlTmpl.Execute(&h, rfp); err != nil {
		return Rendered{}, fmt.Errorf("rendering html body: %w", err)
	}
	if err := textTmpl.Execute(&t, rfp); err != nil {
		return Rendered{}, fmt.Errorf("rendering text body: %w", err)
	}
	return Rendered{Subject: Subject(rfp), HTML: h.String(), Text: t.String()}, nil
}
