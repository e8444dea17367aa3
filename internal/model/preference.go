package model

import "encoding/json"

// Category is a key of a user's email_preferences document.
type Category string

const (
	CategoryNewBids          Category = "newBids"
	CategoryBidAccepted      Category = "bidAccepted"
	CategoryNewQuotes        Category = "newQuotes"
	CategoryPaymentConfirmed Category = "paymentConfirmed"
	CategoryReviewReminder   Category = "reviewReminder"
	CategoryQuoteUpdates     Category = "quoteUpdates"
	CategoryMarketing        Category = "marketing"
	CategoryNewsletter       Category = "newsletter"
	CategoryMessages         Category = "messages"
	CategoryJobUpdates       Category = "jobUpdates"
	CategoryMilestoneUpdates Category = "milestoneUpdates"
	CategoryDisputes         Category = "disputes"
)

// defaultOff lists the opt-in categories; everything else is on unless the user turned it off.
var defaultOff = map[Category]bool{
	CategoryMarketing:  true,
	CategoryNewsletter: true,
}

// Preference is the answer of the preference resolver for one user and category.
type Preference struct {
	EmailEnabled    bool `json:"email_enabled"`
	CategoryEnabled bool `json:"category_enabled"`
}

// Allowed is false when the master switch or the category is off.
func (p Preference) Allowed() bool {
	return p.EmailEnabled && p.CategoryEnabled
}

// CategoryEnabled evaluates one category against a raw email_preferences document.
// Missing keys and an empty or unreadable document fall back to the category default.
func CategoryEnabled(doc []byte, c Category) bool {
	if len(doc) > 0 {
		var prefs map[Category]bool
		if err := json.Unmarshal(doc, &prefs); err == nil {
			if v, ok := prefs[c]; ok {
				return v
			}
		}
	}
	return !defaultOff[c]
}
