package newsletters

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/larpcal/backend/internal/mailing"
	"github.com/larpcal/backend/internal/models"
)

// PlatformName signs platform newsletters and suffixes every subject.
const PlatformName = "LARPCal"

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Render converts newsletter markdown to HTML. Raw HTML in the source is not passed through.
func Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Campaign builds outgoing messages for newsletters.
type Campaign struct {
	// PublicURL is the frontend base URL used in footer links.
	PublicURL string
	// From is the platform sender; organization newsletters keep the address and
	// replace the name.
	From mailing.Address
}

func (c Campaign) footer(n *models.Newsletter, org *models.Organization) string {
	base := strings.TrimRight(c.PublicURL, "/")
	var b strings.Builder
	b.WriteString("\n\n---\n\n")
	if org != nil {
		fmt.Fprintf(&b, "Sent for %s via %s.", org.OrgName, PlatformName)
	} else {
		fmt.Fprintf(&b, "Sent by %s.", PlatformName)
	}
	fmt.Fprintf(&b, " View this email online by [clicking here](%s/newsletters/%d).", base, n.ID)
	fmt.Fprintf(&b, "\n\nManage your [newsletter subscriptions here](%s/auth/login?redirect=/following).", base)
	return b.String()
}

// Message renders n for delivery to recipients. org is nil for platform newsletters.
func (c Campaign) Message(n *models.Newsletter, org *models.Organization, recipients []string) (mailing.Email, error) {
	body, err := Render(n.Text + c.footer(n, org))
	if err != nil {
		return mailing.Email{}, err
	}
	msg := mailing.Email{
		Sender:  c.From,
		Subject: n.Subject + " - " + PlatformName,
		HTML:    body,
		To:      recipients,
		Tags:    []string{"newsletter"},
	}
	if c.From.Name == "" {
		msg.Sender.Name = PlatformName
	}
	if org != nil {
		msg.Sender.Name = org.OrgName
		msg.Subject = fmt.Sprintf("%s - %s via %s", n.Subject, org.OrgName, PlatformName)
		if org.Email != "" {
			msg.ReplyTo = &mailing.Address{Email: org.Email, Name: org.OrgName}
		}
		msg.Tags = append(msg.Tags, fmt.Sprintf("org-%d", org.ID))
	}
	return msg, nil
}
