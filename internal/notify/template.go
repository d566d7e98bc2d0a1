package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Template identifies a notification template.
type Template string

// TemplateRestockAvailable is the back-in-stock announcement sent to waiting
// customers. New templates (price drop, abandoned cart) register here.
const TemplateRestockAvailable Template = "RESTOCK_AVAILABLE"

// Rendered is the output of rendering a template: a subject (email only) and
// a plain-text body shared by all channels.
type Rendered struct {
	Subject string
	Body    string
}

// Render produces the subject and body for a template. It is a pure function
// of (template, data); unknown templates are an error rather than an empty
// message.
func Render(tmpl Template, data TemplateData) (Rendered, error) {
	switch tmpl {
	case TemplateRestockAvailable:
		return renderRestockAvailable(data), nil
	default:
		return Rendered{}, fmt.Errorf("unknown notification template: %s", tmpl)
	}
}

func renderRestockAvailable(data TemplateData) Rendered {
	productName := data.ProductName
	if productName == "" {
		productName = "Your product"
	}
	recoveryURL := data.RecoveryURL
	if recoveryURL == "" {
		recoveryURL = "#"
	}

	greeting := "Hi,"
	if data.CustomerName != "" {
		greeting = fmt.Sprintf("Hi %s,", data.CustomerName)
	}

	body := fmt.Sprintf(`%s

Good news! %s is back in stock.

Buy now: %s

Thank you for your patience!`, greeting, productName, recoveryURL)

	return Rendered{
		Subject: fmt.Sprintf("Good news! %s is back in stock", productName),
		Body:    body,
	}
}

// customerNameCaser capitalizes extracted customer names for greetings.
var customerNameCaser = cases.Title(language.English)

// CustomerNameFromContact derives a display name for template
// personalization. Email local parts like "john.doe" or "john_doe" yield
// "John"; phone numbers yield no name.
func CustomerNameFromContact(contact string) string {
	at := strings.Index(contact, "@")
	if at <= 0 {
		return ""
	}
	local := contact[:at]
	if i := strings.IndexAny(local, "._"); i > 0 {
		local = local[:i]
	}
	if local == "" {
		return ""
	}
	return customerNameCaser.String(strings.ToLower(local))
}
