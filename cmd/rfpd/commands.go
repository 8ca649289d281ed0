package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/rfpd/internal/config"
)

// --- vendors ---

type vendorRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

var vendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "Manage vendors",
}

var vendorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vendors",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/vendors")
		if err != nil {
			return err
		}
		var vendors []vendorRow
		if err := decodeJSON(resp, &vendors); err != nil {
			return err
		}

		if len(vendors) == 0 {
			fmt.Println("No vendors found.")
			return nil
		}
		for _, v := range vendors {
			fmt.Printf("%s  %s <%s>\n", colorize(colorCyan, shortID(v.ID)), v.Name, v.Email)
		}
		return nil
	},
}

var vendorsAddCmd = &cobra.Command{
	Use:   "add <name> <email>",
	Short: "Add a vendor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/vendors", map[string]string{
			"name":  args[0],
			"email": args[1],
			"notes": notes,
		})
		if err != nil {
			return err
		}
		var v vendorRow
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}

		printSuccess("Added vendor %s (%s)", v.Name, v.ID)
		return nil
	},
}

var vendorsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a vendor's name, email or notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		for _, f := range []string{"name", "email", "notes"} {
			if cmd.Flags().Changed(f) {
				v, _ := cmd.Flags().GetString(f)
				body[f] = v
			}
		}
		if len(body) == 0 {
			return fmt.Errorf("one of --name, --email or --notes is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		// Notes are replaced on every update; carry the current value over
		// unless the caller set it.
		if _, ok := body["notes"]; !ok {
			resp, err := client.get(cmd.Context(), "/api/vendors/"+args[0])
			if err != nil {
				return err
			}
			var current vendorRow
			if err := decodeJSON(resp, &current); err != nil {
				return err
			}
			body["notes"] = current.Notes
		}

		resp, err := client.put(cmd.Context(), "/api/vendors/"+args[0], body)
		if err != nil {
			return err
		}
		var v vendorRow
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}

		printSuccess("Updated vendor %s", v.Name)
		return nil
	},
}

var vendorsRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a vendor",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/vendors/"+args[0])
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Deleted vendor %s", args[0])
		return nil
	},
}

func init() {
	vendorsAddCmd.Flags().String("notes", "", "free-form notes about the vendor")
	vendorsUpdateCmd.Flags().String("name", "", "new name")
	vendorsUpdateCmd.Flags().String("email", "", "new email address")
	vendorsUpdateCmd.Flags().String("notes", "", "replacement notes")

	vendorsCmd.AddCommand(vendorsListCmd)
	vendorsCmd.AddCommand(vendorsAddCmd)
	vendorsCmd.AddCommand(vendorsUpdateCmd)
	vendorsCmd.AddCommand(vendorsRemoveCmd)
}

// --- rfps ---

type rfpRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	VendorCount int    `json:"vendorCount"`
	CreatedAt   string `json:"createdAt"`
}

var rfpsCmd = &cobra.Command{
	Use:   "rfps",
	Short: "Create, send and review RFPs",
}

var rfpsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List RFPs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/rfps")
		if err != nil {
			return err
		}
		var rfps []rfpRow
		if err := decodeJSON(resp, &rfps); err != nil {
			return err
		}

		shown := 0
		for _, p := range rfps {
			if status != "" && p.Status != status {
				continue
			}
			shown++
			fmt.Printf("%s  %-10s  %2d vendors  %s\n",
				colorize(colorCyan, shortID(p.ID)),
				colorize(statusColor(p.Status), p.Status),
				p.VendorCount,
				p.Title,
			)
		}
		if shown == 0 {
			fmt.Println("No RFPs found.")
		}
		return nil
	},
}

var rfpsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an RFP with its vendors and proposals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showResource(cmd.Context(), "/api/rfps/"+args[0])
	},
}

var rfpsCreateCmd = &cobra.Command{
	Use:   "create [description]",
	Short: "Draft an RFP from a plain-language description",
	Long: `Draft an RFP from a plain-language description.

Examples:
  rfpd rfps create "20 laptops with 16GB RAM, delivery in 30 days, budget $50k"
  rfpd rfps create --file ./request.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		text := strings.Join(args, " ")
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("a description or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Drafting RFP...")
		resp, err := client.post(cmd.Context(), "/api/rfps/create", map[string]string{"naturalLanguage": text})
		if err != nil {
			return err
		}
		var created map[string]any
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Created RFP %v", created["id"])
		return printData(created)
	},
}

var rfpsSendCmd = &cobra.Command{
	Use:   "send <rfp-id> <vendor-id>...",
	Short: "Email an RFP to one or more vendors",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		failures, err := sendRFP(cmd.Context(), client, args[0], args[1:])
		if err != nil {
			return err
		}
		if failures > 0 {
			return fmt.Errorf("%d of %d sends failed", failures, len(args)-1)
		}
		return nil
	},
}

var rfpsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit RFP fields or status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		for flag, field := range rfpUpdateFlags {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				body[field] = v
			}
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to update")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/api/rfps/"+args[0], body)
		if err != nil {
			return err
		}
		var updated rfpRow
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}

		printSuccess("Updated RFP %s (%s)", updated.Title, updated.Status)
		return nil
	},
}

// rfpUpdateFlags maps CLI flags to API field names.
var rfpUpdateFlags = map[string]string{
	"title":         "title",
	"description":   "description",
	"budget":        "budget",
	"delivery":      "deliveryTimeline",
	"payment-terms": "paymentTerms",
	"warranty":      "warranty",
	"status":        "status",
}

var rfpsRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete an RFP and its vendor engagements",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/rfps/"+args[0])
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Deleted RFP %s", args[0])
		return nil
	},
}

var rfpsCompareCmd = &cobra.Command{
	Use:   "compare <id>",
	Short: "Show an RFP next to all parsed proposals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showResource(cmd.Context(), "/api/rfps/"+args[0]+"/compare")
	},
}

var rfpsEmailsCmd = &cobra.Command{
	Use:   "emails <id>",
	Short: "List vendor replies received for an RFP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showResource(cmd.Context(), "/api/rfps/"+args[0]+"/emails")
	},
}

var rfpsRecommendCmd = &cobra.Command{
	Use:   "recommend <id>",
	Short: "Ask the model to compare proposals and recommend a vendor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printStep("Comparing proposals...")
		return showResource(cmd.Context(), "/api/rfps/"+args[0]+"/recommend")
	},
}

func init() {
	rfpsListCmd.Flags().String("status", "", "only show RFPs with this status")
	rfpsCreateCmd.Flags().String("file", "", "read the description from a file")
	for flag := range rfpUpdateFlags {
		rfpsUpdateCmd.Flags().String(flag, "", "new "+flag)
	}

	rfpsCmd.AddCommand(rfpsListCmd)
	rfpsCmd.AddCommand(rfpsShowCmd)
	rfpsCmd.AddCommand(rfpsCreateCmd)
	rfpsCmd.AddCommand(rfpsSendCmd)
	rfpsCmd.AddCommand(rfpsUpdateCmd)
	rfpsCmd.AddCommand(rfpsRemoveCmd)
	rfpsCmd.AddCommand(rfpsCompareCmd)
	rfpsCmd.AddCommand(rfpsEmailsCmd)
	rfpsCmd.AddCommand(rfpsRecommendCmd)
}

// sendRFP sends rfpID to vendorIDs, prints one line per vendor and returns
// the number of failed sends.
func sendRFP(ctx context.Context, client *apiClient, rfpID string, vendorIDs []string) (int, error) {
	resp, err := client.post(ctx, "/api/rfps/"+rfpID+"/send", map[string]any{"vendorIds": vendorIDs})
	if err != nil {
		return 0, err
	}
	var out struct {
		Results []struct {
			VendorID string `json:"vendorId"`
			Success  bool   `json:"success"`
			Error    string `json:"error"`
		} `json:"results"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return 0, err
	}

	failures := 0
	for _, r := range out.Results {
		if r.Success {
			printSuccess("Sent to %s", r.VendorID)
			continue
		}
		failures++
		printError("%s: %s", r.VendorID, r.Error)
	}
	return failures, nil
}

func showResource(ctx context.Context, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}
	var v any
	if err := decodeJSON(resp, &v); err != nil {
		return err
	}
	return printData(v)
}

// --- proposals ---

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "Work with vendor proposals",
}

var proposalsParseCmd = &cobra.Command{
	Use:   "parse <raw-email-id>",
	Short: "Extract a structured proposal from a stored vendor reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Parsing reply...")
		resp, err := client.post(cmd.Context(), "/api/proposals/parse", map[string]string{"rawEmailId": args[0]})
		if err != nil {
			return err
		}
		var p map[string]any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		printSuccess("Created proposal %v", p["id"])
		return printData(p)
	},
}

func init() {
	proposalsCmd.AddCommand(proposalsParseCmd)
}

// --- status helpers ---

type counts struct {
	vendors      int
	rfpsByStatus map[string]int
}

func fetchCounts(ctx context.Context, client *apiClient) (counts, error) {
	c := counts{rfpsByStatus: map[string]int{}}

	resp, err := client.get(ctx, "/api/vendors")
	if err != nil {
		return c, err
	}
	var vendors []json.RawMessage
	if err := decodeJSON(resp, &vendors); err != nil {
		return c, err
	}
	c.vendors = len(vendors)

	resp, err = client.get(ctx, "/api/rfps")
	if err != nil {
		return c, err
	}
	var rfps []rfpRow
	if err := decodeJSON(resp, &rfps); err != nil {
		return c, err
	}
	for _, p := range rfps {
		c.rfpsByStatus[p.Status]++
	}
	return c, nil
}

func countsByStatus(m map[string]int) string {
	if len(m) == 0 {
		return "0"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%d %s", m[k], k)
	}
	return strings.Join(parts, ", ")
}

func statusColor(status string) string {
	switch status {
	case "sent":
		return colorYellow
	case "responded":
		return colorGreen
	case "closed":
		return colorBold
	}
	return colorCyan
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadUnchecked()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		if cmd.Flags().Changed("format") {
			return printData(keys)
		}
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
