// Package contact handles the public contact form: CAPTCHA verification and
// delivery through a transactional email API.
package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrCaptchaFailed is returned when the CAPTCHA token is rejected.
	ErrCaptchaFailed = errors.New("captcha verification failed")
	// ErrNotConfigured is returned when CAPTCHA or email credentials are missing.
	ErrNotConfigured = errors.New("contact form is not configured")
)

// Message is one contact form submission.
type Message struct {
	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required,min=5,max=5000"`
	Token   string `json:"token" validate:"required"`
	Lang    string `json:"lang,omitempty"`
}

// ValidationError reports a rejected form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate trims the fields and checks them. The first failing field is
// reported.
func (m *Message) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	m.Message = strings.TrimSpace(m.Message)
	err := validate.Struct(m)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		return &ValidationError{Field: field, Message: describe(fe)}
	}
	return err
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}

// Verifier checks CAPTCHA tokens against a siteverify endpoint (Cloudflare
// Turnstile, hCaptcha and reCAPTCHA share the form-encoded protocol).
type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// NewVerifier creates a Verifier.
func NewVerifier(secret, verifyURL string) *Verifier {
	return &Verifier{secret: secret, verifyURL: verifyURL, client: &http.Client{Timeout: 10 * time.Second}}
}

// Verify returns nil when the provider accepts token.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if v.secret == "" {
		return ErrNotConfigured
	}
	form := url.Values{"secret": {v.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("captcha request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("captcha provider returned %d", resp.StatusCode)
	}
	var out struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode captcha response: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("%w: %s", ErrCaptchaFailed, strings.Join(out.ErrorCodes, ","))
	}
	return nil
}

// Mailer sends contact messages through a Resend-compatible JSON API,
// retrying throttled and server-side failures.
type Mailer struct {
	apiKey  string
	apiURL  string
	from    string
	to      string
	client  *http.Client
	backoff func() retry.Backoff
}

// NewMailer creates a Mailer.
func NewMailer(apiKey, apiURL, from, to string) *Mailer {
	return &Mailer{
		apiKey: apiKey,
		apiURL: apiURL,
		from:   from,
		to:     to,
		client: &http.Client{Timeout: 15 * time.Second},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
		},
	}
}

// WithBackoff replaces the retry policy.
func (m *Mailer) WithBackoff(b func() retry.Backoff) *Mailer {
	m.backoff = b
	return m
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// Send delivers msg to the firm's inbox with the sender as reply-to.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if m.apiKey == "" || m.from == "" || m.to == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(emailRequest{
		From:    m.from,
		To:      []string{m.to},
		ReplyTo: msg.Email,
		Subject: "Contact: " + msg.Name,
		Text:    fmt.Sprintf("%s <%s>\n\n%s", msg.Name, msg.Email, msg.Message),
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	return retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create email request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := m.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("email request: %w", err))
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("email API returned %d: %s", resp.StatusCode, respBody))
		default:
			return fmt.Errorf("email API returned %d: %s", resp.StatusCode, respBody)
		}
	})
}
