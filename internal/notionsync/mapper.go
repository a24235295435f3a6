package notionsync

import (
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Notion transactions database.
const (
	PropReference = "Reference"
	PropDate      = "Date"
	PropAmount    = "Amount"
	PropCurrency  = "Currency"
	PropMessage   = "Message"
	PropUser      = "User"
)

// TransactionToNotionProperties converts a transaction to Notion properties.
// The reference is the page title and identifies the page on later syncs.
func TransactionToNotionProperties(tx *domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropReference: notionapi.TitleProperty{
			Title: richText(tx.Reference),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(tx.Timestamp.UTC())
					return &d
				}(),
			},
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
	}

	// Currency
	if tx.Currency != "" {
		props[PropCurrency] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Currency,
			},
		}
	}

	// Message
	if tx.Message != "" {
		props[PropMessage] = notionapi.RichTextProperty{
			RichText: richText(tx.Message),
		}
	}

	// User
	if tx.UserID != "" {
		props[PropUser] = notionapi.RichTextProperty{
			RichText: richText(tx.UserID),
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

// extractReference extracts the transaction reference from a Notion page's
// title. Returns empty string if not found.
func extractReference(page notionapi.Page) string {
	if prop, ok := page.Properties[PropReference]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			if len(title.Title) > 0 {
				return title.Title[0].PlainText
			}
		}
	}
	return ""
}
