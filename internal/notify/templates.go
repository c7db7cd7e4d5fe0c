package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

const (
	// WelcomeSubject is the subject of the early-access welcome mail.
	WelcomeSubject = "Welcome to CodeBoard Early Access!"
	// ReceiptSubject is the subject of the contribution receipt mail.
	ReceiptSubject = "Thank you for your contribution to CodeBoard!"

	defaultWelcomeName = "there"
	defaultReceiptName = "CodeBoard Contributor"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Receipt describes a stored contribution for the receipt mail.
type Receipt struct {
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Text      string   `json:"text"`
	Languages []string `json:"languages"`
	Context   string   `json:"context,omitempty"`
}

// RenderWelcome renders the welcome mail for a newly registered user.
func RenderWelcome(email, name string) (Message, error) {
	if strings.TrimSpace(name) == "" {
		name = defaultWelcomeName
	}
	body, err := render("welcome.html", map[string]any{"Name": name})
	if err != nil {
		return Message{}, err
	}
	return Message{To: email, Subject: WelcomeSubject, HTML: body}, nil
}

// RenderReceipt renders the acknowledgement for a stored contribution.
func RenderReceipt(r Receipt) (Message, error) {
	name := r.Name
	if strings.TrimSpace(name) == "" {
		name = defaultReceiptName
	}
	body, err := render("receipt.html", map[string]any{
		"Name":      name,
		"Text":      r.Text,
		"Languages": strings.Join(r.Languages, ", "),
		"Context":   r.Context,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: r.Email, Subject: ReceiptSubject, HTML: body}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	return buf.String(), nil
}
