package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaneweinberger/Finsight-V2.0/internal/domain"
)

// structuredRuleJSON is the wire shape of one structured rule inside the
// prompt.
type structuredRuleJSON struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Condition struct {
		Field    string `json:"field"`
		Operator string `json:"operator"`
		Value    string `json:"value"`
	} `json:"condition"`
	Action struct {
		Category            string `json:"category"`
		DescriptionOverride string `json:"description_override,omitempty"`
	} `json:"action"`
}

// transactionJSON is the minimal transaction projection sent to the
// classifier. Date, type and account are withheld to bound payload size.
type transactionJSON struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// buildClassifyPrompt assembles the full prompt for one user's slice:
// template, category vocabulary, serialized structured rules, numbered
// free-text instructions and the minimal transaction projection, followed by
// the output contract.
func buildClassifyPrompt(req ClassifyRequest) string {
	var b strings.Builder

	b.WriteString(req.Prompt)
	b.WriteString("\n\n")

	b.WriteString("User Categories: ")
	b.WriteString(mustJSON(req.Categories))
	b.WriteString("\n")
	b.WriteString("You MUST pick final_category from this list, or the special value \"" + domain.DeleteSentinel + "\" to discard a transaction.\n\n")

	if len(req.StructuredRules) > 0 {
		b.WriteString("User Rules (JSON, apply in priority order, higher priority first):\n")
		b.WriteString(mustJSON(serializeStructuredRules(req.StructuredRules)))
		b.WriteString("\n\n")
	}

	if len(req.FreeTextRules) > 0 {
		b.WriteString("HIGH PRIORITY user instructions. Follow these before anything else:\n")
		for i, r := range req.FreeTextRules {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r.Instruction)
		}
		b.WriteString("\n")
	}

	b.WriteString("Transactions to Categorize:\n")
	b.WriteString(mustJSON(serializeTransactions(req.Transactions)))
	b.WriteString("\n\n")

	b.WriteString("Output a JSON array where each object has:\n")
	b.WriteString("- \"uuid\": the transaction id provided\n")
	b.WriteString("- \"final_category\": the selected category based on description and rules\n")
	b.WriteString("- \"final_description\": cleaned up merchant name, e.g. \"UBER *TRIP\" -> \"Uber\"\n")
	b.WriteString("Return ONLY valid raw JSON. Do NOT wrap the response in code fences.\n")

	return b.String()
}

func serializeStructuredRules(rules []domain.Rule) []structuredRuleJSON {
	out := make([]structuredRuleJSON, 0, len(rules))
	for _, r := range rules {
		var sr structuredRuleJSON
		sr.Name = r.Name
		sr.Priority = r.Priority
		if r.Condition != nil {
			sr.Condition.Field = r.Condition.Field
			sr.Condition.Operator = r.Condition.Operator
			sr.Condition.Value = r.Condition.Value
		}
		if r.Action != nil {
			sr.Action.Category = r.Action.Category
			sr.Action.DescriptionOverride = r.Action.DescriptionOverride
		}
		out = append(out, sr)
	}
	return out
}

func serializeTransactions(drafts []DraftTransaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, transactionJSON{
			ID:          d.ID,
			Description: d.Description,
			Amount:      d.Amount,
		})
	}
	return out
}

// mustJSON marshals values built from plain structs and strings; these
// cannot fail to marshal.
func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}
