package service

import (
	"fmt"
	"strings"

	"github.com/samims/tradenotify/internal/model"
)

var (
	emailAndInApp = []model.Channel{model.ChannelEmail, model.ChannelInApp}
	emailOnly     = []model.Channel{model.ChannelEmail}
	inAppOnly     = []model.Channel{model.ChannelInApp}
)

// route is one recipient of an event with the content rendered for them.
type route struct {
	recipientID string
	channels    []model.Channel
	category    model.Category
	title       string
	body        string
	actionPath  string
	data        map[string]string
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func pounds(pence int64) string {
	sign := ""
	if pence < 0 {
		sign, pence = "-", -pence
	}
	return fmt.Sprintf("%s£%d.%02d", sign, pence/100, pence%100)
}

// routesFor is the routing table. Every payload type of the vocabulary has a case, including the
// ones that notify nobody; the second result is false only for a payload type it does not know.
func routesFor(evt *model.Event, p model.Payload) ([]route, bool) {
	switch p := p.(type) {
	case model.LeadOffered:
		return []route{{
			recipientID: p.VendorID, channels: emailAndInApp, category: model.CategoryNewBids,
			title:      "New lead: " + orDefault(p.JobTitle, "Job"),
			body:       "A new job matching your profile is available.",
			actionPath: "/vendor/leads/" + p.LeadID,
		}}, true

	case model.LeadAccepted:
		data := map[string]string{}
		if p.ConversationID != "" {
			data["conversation_id"] = p.ConversationID
		}
		return []route{
			{
				recipientID: p.CustomerID, channels: emailAndInApp, category: model.CategoryBidAccepted,
				title:      "Vendor accepted your job",
				body:       orDefault(p.VendorName, "A vendor") + " accepted your job request.",
				actionPath: "/customer/jobs/" + evt.JobID, data: data,
			},
			{
				recipientID: p.VendorID, channels: inAppOnly, category: model.CategoryBidAccepted,
				title:      "Lead accepted",
				body:       "Your lead has been accepted. Messaging is now enabled.",
				actionPath: "/vendor/leads/" + p.LeadID, data: data,
			},
		}, true

	case model.LeadDeclined:
		return []route{{
			recipientID: p.CustomerID, channels: inAppOnly, category: model.CategoryJobUpdates,
			title:      "Vendor declined your job",
			body:       orDefault(p.VendorName, "A vendor") + " is not able to take on your job.",
			actionPath: "/customer/jobs/" + evt.JobID,
		}}, true

	case model.LeadExpired:
		return []route{{
			recipientID: p.VendorID, channels: inAppOnly, category: model.CategoryNewBids,
			title:      "Lead expired",
			body:       "The lead for " + orDefault(p.JobTitle, "a job") + " has expired.",
			actionPath: "/vendor/leads/" + p.LeadID,
		}}, true

	case model.QuoteSent:
		return []route{{
			recipientID: p.CustomerID, channels: emailAndInApp, category: model.CategoryNewQuotes,
			title:      "Quote received",
			body:       fmt.Sprintf("%s sent a quote: %s", orDefault(p.VendorName, "A vendor"), pounds(p.AmountPence)),
			actionPath: "/customer/jobs/" + evt.JobID,
		}}, true

	case model.QuoteAccepted:
		return []route{{
			recipientID: p.VendorID, channels: emailAndInApp, category: model.CategoryQuoteUpdates,
			title:      "Quote accepted!",
			body:       orDefault(p.CustomerName, "The customer") + " accepted your quote.",
			actionPath: "/vendor/quotes/" + p.QuoteID,
		}}, true

	case model.QuoteRejected:
		return []route{{
			recipientID: p.VendorID, channels: inAppOnly, category: model.CategoryQuoteUpdates,
			title:      "Quote declined",
			body:       orDefault(p.CustomerName, "The customer") + " declined your quote.",
			actionPath: "/vendor/quotes/" + p.QuoteID,
		}}, true

	case model.QuoteWithdrawn:
		return []route{{
			recipientID: p.CustomerID, channels: inAppOnly, category: model.CategoryQuoteUpdates,
			title:      "Quote withdrawn",
			body:       orDefault(p.VendorName, "The vendor") + " withdrew their quote.",
			actionPath: "/customer/jobs/" + evt.JobID,
		}}, true

	case model.MessageSent:
		return []route{{
			recipientID: p.RecipientID, channels: emailAndInApp, category: model.CategoryMessages,
			title:      "New message",
			body:       orDefault(p.SenderName, "Someone") + " sent you a message.",
			actionPath: "/messages/" + p.ConversationID,
			data:       map[string]string{"conversation_id": p.ConversationID, "message_id": p.MessageID},
		}}, true

	case model.MessageRead:
		return nil, true

	case model.ConversationLocked:
		data := map[string]string{"conversation_id": p.ConversationID}
		body := "An administrator locked this conversation."
		if p.Reason != "" {
			body += " Reason: " + p.Reason
		}
		return []route{
			{recipientID: p.CustomerID, channels: inAppOnly, category: model.CategoryMessages,
				title: "Conversation locked", body: body, actionPath: "/messages/" + p.ConversationID, data: data},
			{recipientID: p.VendorID, channels: inAppOnly, category: model.CategoryMessages,
				title: "Conversation locked", body: body, actionPath: "/messages/" + p.ConversationID, data: data},
		}, true

	case model.ConversationArchived:
		return nil, true

	case model.JobCreated:
		return nil, true

	case model.JobPosted:
		return []route{{
			recipientID: p.CustomerID, channels: inAppOnly, category: model.CategoryJobUpdates,
			title:      "Your job is live",
			body:       orDefault(p.JobTitle, "Your job") + " is now visible to vendors.",
			actionPath: "/customer/jobs/" + evt.JobID,
		}}, true

	case model.JobCancelled:
		if p.VendorID == "" {
			return nil, true
		}
		return []route{{
			recipientID: p.VendorID, channels: emailAndInApp, category: model.CategoryJobUpdates,
			title:      "Job cancelled",
			body:       "The customer cancelled " + orDefault(p.JobTitle, "the job") + ".",
			actionPath: "/vendor/jobs/" + evt.JobID,
		}}, true

	case model.JobInProgress:
		return []route{{
			recipientID: p.CustomerID, channels: inAppOnly, category: model.CategoryJobUpdates,
			title:      "Work has started",
			body:       "Your vendor has started work on " + orDefault(p.JobTitle, "your job") + ".",
			actionPath: "/customer/jobs/" + evt.JobID,
		}}, true

	case model.JobCompleted:
		return []route{
			{
				recipientID: p.CustomerID, channels: emailAndInApp, category: model.CategoryReviewReminder,
				title:      "Job completed: leave a review",
				body:       "How did it go? Leave a review for " + orDefault(p.JobTitle, "your job") + ".",
				actionPath: "/customer/jobs/" + evt.JobID + "/review",
			},
			{
				recipientID: p.VendorID, channels: inAppOnly, category: model.CategoryJobUpdates,
				title:      "Job completed",
				body:       orDefault(p.JobTitle, "The job") + " has been marked as completed.",
				actionPath: "/vendor/jobs/" + evt.JobID,
			},
		}, true

	case model.MilestoneSubmitted:
		return []route{{
			recipientID: p.CustomerID, channels: emailAndInApp, category: model.CategoryMilestoneUpdates,
			title:      "Milestone submitted",
			body:       orDefault(p.VendorName, "Your vendor") + " submitted a milestone for your approval.",
			actionPath: "/customer/jobs/" + evt.JobID,
			data:       map[string]string{"milestone_id": p.MilestoneID},
		}}, true

	case model.MilestoneApproved:
		return []route{{
			recipientID: p.VendorID, channels: emailAndInApp, category: model.CategoryMilestoneUpdates,
			title:      "Milestone approved",
			body:       "Your milestone was approved. Payment will be released shortly.",
			actionPath: "/vendor/milestones",
			data:       map[string]string{"milestone_id": p.MilestoneID},
		}}, true

	case model.MilestoneRejected:
		body := "Your milestone " + orDefault(p.Title, p.MilestoneID) + " was not approved."
		if p.Reason != "" {
			body += " Reason: " + p.Reason
		}
		return []route{{
			recipientID: p.VendorID, channels: emailAndInApp, category: model.CategoryMilestoneUpdates,
			title: "Milestone rejected", body: body, actionPath: "/vendor/milestones",
			data: map[string]string{"milestone_id": p.MilestoneID},
		}}, true

	case model.MilestoneCompleted:
		data := map[string]string{"milestone_id": p.MilestoneID}
		body := "Milestone " + orDefault(p.Title, p.MilestoneID) + " is complete."
		return []route{
			{recipientID: p.CustomerID, channels: inAppOnly, category: model.CategoryMilestoneUpdates,
				title: "Milestone completed", body: body, actionPath: "/customer/jobs/" + evt.JobID, data: data},
			{recipientID: p.VendorID, channels: inAppOnly, category: model.CategoryMilestoneUpdates,
				title: "Milestone completed", body: body, actionPath: "/vendor/milestones", data: data},
		}, true

	case model.MilestoneDisputed:
		data := map[string]string{"milestone_id": p.MilestoneID, "contract_id": p.ContractID}
		body := "A dispute was raised on milestone " + orDefault(p.Title, p.MilestoneID) +
			". The contract is locked until an admin resolves it."
		return []route{
			{recipientID: p.CustomerID, channels: emailOnly, category: model.CategoryDisputes,
				title: "Milestone disputed", body: body, actionPath: "/customer/jobs/" + evt.JobID, data: data},
			{recipientID: p.VendorID, channels: emailOnly, category: model.CategoryDisputes,
				title: "Milestone disputed", body: body, actionPath: "/vendor/milestones", data: data},
		}, true

	case model.PaymentReleased:
		return []route{{
			recipientID: p.VendorID, channels: emailAndInApp, category: model.CategoryPaymentConfirmed,
			title:      "Payment released",
			body:       pounds(p.AmountPence) + " has been released to you.",
			actionPath: "/vendor/payments",
			data:       map[string]string{"payment_id": p.PaymentID},
		}}, true

	case model.PaymentDisputed:
		data := map[string]string{"payment_id": p.PaymentID}
		return []route{
			{recipientID: p.CustomerID, channels: emailOnly, category: model.CategoryDisputes,
				title: "Payment disputed", body: "A dispute was opened on your payment.", actionPath: "/customer/payments", data: data},
			{recipientID: p.VendorID, channels: emailOnly, category: model.CategoryDisputes,
				title: "Payment disputed", body: "A dispute was opened on a payment to you.", actionPath: "/vendor/payments", data: data},
		}, true

	case model.ReviewPosted:
		return []route{{
			recipientID: p.VendorID, channels: emailAndInApp, category: model.CategoryJobUpdates,
			title:      "Review posted",
			body:       fmt.Sprintf("%s left you a %d-star review.", orDefault(p.CustomerName, "A customer"), p.Rating),
			actionPath: "/vendor/reviews",
		}}, true

	case model.ReviewResponded:
		return []route{{
			recipientID: p.CustomerID, channels: inAppOnly, category: model.CategoryJobUpdates,
			title:      "Vendor responded to your review",
			body:       orDefault(p.VendorName, "The vendor") + " responded to your review.",
			actionPath: "/customer/reviews",
		}}, true

	case model.ErrorDoubleAccept:
		if p.VendorID == "" {
			return nil, true
		}
		return []route{{
			recipientID: p.VendorID, channels: inAppOnly, category: model.CategoryNewBids,
			title:      "Lead already taken",
			body:       "Another vendor accepted this lead first.",
			actionPath: "/vendor/leads/" + p.LeadID,
		}}, true

	case model.ErrorInsufficientFunds:
		return []route{{
			recipientID: p.VendorID, channels: emailAndInApp, category: model.CategoryPaymentConfirmed,
			title:      "Insufficient credit",
			body:       fmt.Sprintf("You need %s of credit but have %s.", pounds(p.RequiredPence), pounds(p.AvailablePence)),
			actionPath: "/vendor/credits",
		}}, true
	}
	return nil, false
}
