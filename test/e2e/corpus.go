// Package e2e provides end-to-end tests over a generated support corpus.
package e2e

import (
	"fmt"
	"strings"
)

// SupportDocument is one document of the generated corpus.
type SupportDocument struct {
	ID      string // file name without extension
	Title   string
	Content string
}

// Text returns the document as written to disk.
func (d SupportDocument) Text() string {
	return d.Title + "\n\n" + d.Content
}

// QueryTestCase defines a question and the documents that must be among its hits.
type QueryTestCase struct {
	Query       string
	ExpectedIDs []string
	Description string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Documents    []SupportDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

type topic struct {
	slug    string
	title   string
	phrase  string
	content string
}

var topics = []topic{
	{"billing_faq", "Cancel subscription", "cancel your subscription",
		"To cancel your subscription, open Settings, choose Billing, and click Cancel plan. The plan stays active until the end of the current period."},
	{"refund_policy", "Refund policy", "prorated refund",
		"Refunds go back to the original payment method within ten business days. Annual plans qualify for a prorated refund."},
	{"password_reset", "Reset your password", "reset link",
		"Forgot your password? Use the reset link on the sign-in page. The reset link expires after thirty minutes."},
	{"two_factor", "Two-factor authentication", "authenticator app",
		"Two-factor authentication asks for a verification code from an authenticator app whenever you sign in from a new device."},
	{"shipping_times", "Shipping times", "express shipping",
		"Standard shipping takes five to seven business days. Express shipping arrives within two days for an extra fee."},
	{"order_tracking", "Track an order", "tracking number",
		"Follow your parcel with the tracking number printed in the confirmation message sent after checkout."},
	{"returns", "Returns", "prepaid return label",
		"Return unused items within thirty days. Print the prepaid return label from your order history and drop the box at any carrier."},
	{"invoices", "Invoices", "VAT number",
		"Download invoices as PDF from the history page. Add your VAT number so it appears on every invoice."},
	{"payment_methods", "Payment methods", "American Express",
		"We accept Visa, Mastercard, American Express, and PayPal. Wire transfer is available for enterprise customers."},
	{"account_deletion", "Delete your account", "grace period",
		"Deleting your account erases your data permanently after a fourteen day grace period during which you can restore it."},
	{"team_seats", "Team seats", "team members",
		"Invite team members from the Team page. Each seat is charged monthly and unused seats can be released at any time."},
	{"api_keys", "API keys", "rotate keys",
		"Generate API keys under Developer settings. We recommend you rotate keys every ninety days and never commit them to source control."},
	{"data_export", "Export your data", "CSV archive",
		"Request a CSV archive of everything you stored from the Privacy section. The archive link is valid for seven days."},
	{"notifications", "Notification preferences", "email notifications",
		"Mute email notifications or switch to a weekly digest from the Notifications preferences panel."},
	{"mobile_app", "Mobile app", "offline mode",
		"The mobile app for iOS and Android supports offline mode and syncs your changes when you reconnect."},
	{"service_status", "Service status", "scheduled maintenance",
		"Check the status page for incident updates and scheduled maintenance windows announced a week ahead."},
	{"gift_cards", "Gift cards", "redeemed at checkout",
		"Gift cards never expire and can be redeemed at checkout or added to your wallet balance."},
	{"language_settings", "Interface language", "interface language",
		"Change the interface language from Profile, then Language, and select a locale. Dates and currencies follow the locale."},
	{"student_discount", "Student discount", "university email",
		"Students get half price after verifying a university email address once a year."},
	{"contact_support", "Contact support", "Live chat",
		"Live chat with our agents is available on weekdays from nine to five. Outside those hours leave a message and we reply by morning."},
}

// BuildCorpus returns n support documents cycling through the topics, and one
// query per topic expecting every document of that topic.
func BuildCorpus(n int) *Corpus {
	docs := buildDocuments(n)
	cases := buildQueryTestCases(docs)
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

func buildDocuments(n int) []SupportDocument {
	out := make([]SupportDocument, 0, n)
	for i := 0; i < n; i++ {
		t := topics[i%len(topics)]
		title := t.title
		if i >= len(topics) {
			title = fmt.Sprintf("%s (%d)", t.title, i/len(topics)+1)
		}
		out = append(out, SupportDocument{
			ID:      fmt.Sprintf("%s_%03d", t.slug, i+1),
			Title:   title,
			Content: t.content,
		})
	}
	return out
}

func buildQueryTestCases(docs []SupportDocument) []QueryTestCase {
	var cases []QueryTestCase
	for _, t := range topics {
		var ids []string
		for _, d := range docs {
			if strings.HasPrefix(d.ID, t.slug+"_") {
				ids = append(ids, d.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		cases = append(cases, QueryTestCase{
			Query:       t.phrase,
			ExpectedIDs: ids,
			Description: fmt.Sprintf("query %q should return %s", t.phrase, t.slug),
		})
	}
	return cases
}

func containsPhrase(d SupportDocument, phrase string) bool {
	return strings.Contains(d.Title, phrase) || strings.Contains(d.Content, phrase)
}
