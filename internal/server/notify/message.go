package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/server/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplatePasswordReset   = "password_reset"
	TemplatePasswordChanged = "password_changed"
	TemplateWelcome         = "welcome"
)

// Message is one rendered email.
type Message struct {
	Template string
	To       string
	Subject  string
	HTML     string
}

// Renderer turns account events into messages.
type Renderer struct {
	frontendURL string
	templates   map[string]*template.Template
}

func NewRenderer(frontendURL string) (*Renderer, error) {
	r := &Renderer{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		templates:   make(map[string]*template.Template),
	}
	for _, name := range []string{TemplatePasswordReset, TemplatePasswordChanged, TemplateWelcome} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("error parsing %s template: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

func (r *Renderer) render(name, to, subject string, data map[string]any) (Message, error) {
	var buf bytes.Buffer
	data["Title"] = subject
	if err := r.templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return Message{}, fmt.Errorf("error rendering %s: %w", name, err)
	}
	return Message{Template: name, To: to, Subject: subject, HTML: buf.String()}, nil
}

// ResetLink is the frontend page that accepts the raw reset secret.
func (r *Renderer) ResetLink(kind, raw string) string {
	q := url.Values{}
	q.Set("token", raw)
	q.Set("type", kind)
	return r.frontendURL + "/reset-password?" + q.Encode()
}

func (r *Renderer) PasswordReset(acc *models.Account, raw string) (Message, error) {
	return r.render(TemplatePasswordReset, acc.Email, "Password Reset Request - DomainX", map[string]any{
		"Kind":      acc.Kind,
		"Link":      r.ResetLink(acc.Kind, raw),
		"ExpiresIn": humanDuration(common.ResetTokenTTL),
	})
}

func (r *Renderer) PasswordChanged(acc *models.Account, when time.Time) (Message, error) {
	return r.render(TemplatePasswordChanged, acc.Email, "Password Changed Successfully - DomainX", map[string]any{
		"Kind": acc.Kind,
		"Name": acc.Name,
		"When": when.UTC().Format("January 2, 2006 at 15:04 UTC"),
	})
}

func (r *Renderer) Welcome(acc *models.Account) (Message, error) {
	return r.render(TemplateWelcome, acc.Email, "Welcome to DomainX", map[string]any{
		"Kind":            acc.Kind,
		"Name":            acc.Name,
		"Email":           acc.Email,
		"PendingApproval": !acc.IsApproved,
	})
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return d.String()
}
