package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"
)

var ErrInvalidMessage = errors.New("invalid mail message")

// Message is a rendered HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers rendered messages.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message) error

func (f TransportFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

var (
	verificationTmpl = template.Must(template.New("verification").Parse(`<html>
  <body>
    <h2>Welcome to {{.Brand}}!</h2>
    <p>Your verification code is: <strong>{{.Code}}</strong></p>
    <p>This code will expire in {{.Expiry}}.</p>
    <p>If you did not sign up for {{.Brand}}, please ignore this email.</p>
  </body>
</html>
`))

	resetTmpl = template.Must(template.New("reset").Parse(`<html>
  <body>
    <h2>Password Reset Request</h2>
    <p>Your password reset code is: <strong>{{.Code}}</strong></p>
    <p>This code will expire in {{.Expiry}}.</p>
    <p>If you did not request a password reset, please ignore this email.</p>
  </body>
</html>
`))
)

type codeView struct {
	Brand  string
	Code   string
	Expiry string
}

// Sender renders code emails for one brand.
type Sender struct {
	transport Transport
	brand     string
	codeTTL   time.Duration
}

func NewSender(transport Transport, brand string, codeTTL time.Duration) *Sender {
	if brand == "" {
		brand = "authgate"
	}
	return &Sender{transport: transport, brand: brand, codeTTL: codeTTL}
}

func (s *Sender) SendVerificationCode(ctx context.Context, to, code string) error {
	return s.send(ctx, to, "Verification Code for "+s.brand, verificationTmpl, code)
}

func (s *Sender) SendPasswordResetCode(ctx context.Context, to, code string) error {
	return s.send(ctx, to, "Password Reset Code for "+s.brand, resetTmpl, code)
}

func (s *Sender) send(ctx context.Context, to, subject string, tmpl *template.Template, code string) error {
	if s == nil || s.transport == nil {
		return nil
	}
	if to == "" || code == "" {
		return fmt.Errorf("%w: recipient and code are required", ErrInvalidMessage)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, codeView{Brand: s.brand, Code: code, Expiry: humanize(s.codeTTL)}); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return s.transport.Send(ctx, Message{To: to, Subject: subject, HTML: body.String()})
}

func humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return "a few minutes"
	case d%time.Hour == 0 && d >= time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
