package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"
)

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody,omitempty"`
	TextBody string        `json:"textbody,omitempty"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type ZeptoConfig struct {
	APIURL string // e.g. https://api.zeptomail.com/v1.1/email
	APIKey string // e.g. Zoho-enczapikey xxxxx
	From   string // default sender
	ToName string // recipient display name fallback
}

// Zepto sends mail through the ZeptoMail HTTP API.
type Zepto struct {
	cfg    ZeptoConfig
	client *http.Client
}

func NewZepto(cfg ZeptoConfig) *Zepto {
	return &Zepto{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

func (z *Zepto) Send(ctx context.Context, msg Message) error {
	if z.cfg.APIURL == "" || z.cfg.APIKey == "" {
		return fmt.Errorf("missing required email config")
	}
	from := msg.From
	if from == "" {
		from = z.cfg.From
	}
	if from == "" {
		return fmt.Errorf("missing sender address")
	}

	payload := emailRequest{
		From: emailAddress{Address: from},
		To: []toRecipient{
			{Email: emailWithName{Address: msg.To, Name: z.cfg.ToName}},
		},
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
		TextBody: msg.Text,
	}
	if payload.HtmlBody == "" && payload.TextBody != "" {
		payload.HtmlBody = textToHTML(payload.TextBody)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", z.cfg.APIKey)

	resp, err := z.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zeptomail API error: %s", resp.Status)
	}

	log.Printf("mailer: email sent to %s", msg.To)
	return nil
}

func textToHTML(text string) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>"
}
