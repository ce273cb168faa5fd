// Package email composes MIME messages with gomail and sends them over SMTP
// or AWS SES.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"gopkg.in/gomail.v2"
)

var htmlTag = regexp.MustCompile(`(?i)<(html|body|p|br|div|table|a|b|i|strong|em|span|h[1-6]|ul|ol|li)[\s/>]`)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one email to a single recipient.
type Message struct {
	From        string
	FromName    string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// IsHTML reports whether body looks like HTML markup.
func IsHTML(body string) bool {
	return htmlTag.MatchString(body)
}

// Compose builds the MIME message.
func Compose(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if IsHTML(msg.Body) {
		m.SetBody("text/html", msg.Body)
	} else {
		m.SetBody("text/plain", msg.Body)
	}
	for _, a := range msg.Attachments {
		data := a.Data
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		m.Attach(a.Filename, settings...)
	}
	return m
}

// Result is the outcome of one message in a batch.
type Result struct {
	ID  string
	Err error
}

// Transport delivers a batch of messages, one Result per message in order.
type Transport interface {
	Send(ctx context.Context, msgs []*gomail.Message) []Result
}

// SMTP sends a batch over one SMTP connection, resetting the session after a
// rejected message so the rest of the batch is unaffected.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	// Timeout bounds the whole session when ctx carries no deadline.
	Timeout time.Duration
	dialer  net.Dialer
}

func NewSMTP(server string, port int, username, password string) *SMTP {
	return &SMTP{Host: server, Port: port, Username: username, Password: password, Timeout: 30 * time.Second}
}

func (s *SMTP) addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *SMTP) Send(ctx context.Context, msgs []*gomail.Message) []Result {
	results := make([]Result, len(msgs))
	if len(msgs) == 0 {
		return results
	}
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok && s.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	c, err := s.open(ctx)
	if err != nil {
		err = fmt.Errorf("failed to connect to %s: %w", s.addr(), err)
		for i := range results {
			results[i].Err = err
		}
		return results
	}
	defer func() {
		if c != nil {
			c.Close()
		}
	}()

	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		if c == nil {
			if c, err = s.open(ctx); err != nil {
				results[i].Err = fmt.Errorf("failed to connect to %s: %w", s.addr(), err)
				continue
			}
		}
		if err := gomail.Send(session(c), m); err != nil {
			results[i].Err = fmt.Errorf("failed to send email to %s: %w", strings.Join(m.GetHeader("To"), ","), err)
			if c.Reset() != nil {
				c.Close()
				c = nil
			}
		}
	}
	if c != nil {
		c.Quit()
		c = nil
	}
	return results
}

// open dials and greets the server. The connection deadline follows ctx.
func (s *SMTP) open(ctx context.Context) (*smtp.Client, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	raw := conn
	context.AfterFunc(ctx, func() { raw.SetDeadline(time.Now()) })

	if s.Port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: s.Host})
	}
	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	fail := func(err error) (*smtp.Client, error) {
		c.Close()
		return nil, err
	}
	if err := c.Hello("localhost"); err != nil {
		return fail(err)
	}
	if ok, _ := c.Extension("STARTTLS"); ok && s.Port != 465 {
		if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return fail(err)
		}
	}
	if s.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
				return fail(err)
			}
		}
	}
	return c, nil
}

// session runs one MAIL/RCPT/DATA transaction on c.
func session(c *smtp.Client) gomail.SendFunc {
	return func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, addr := range to {
			if err := c.Rcpt(addr); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	}
}

// SESAPI is the part of the SES client used here.
type SESAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SES sends the gomail MIME bytes through SendRawEmail.
type SES struct {
	client SESAPI
}

func NewSES(ctx context.Context, region string) (*SES, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &SES{client: ses.NewFromConfig(cfg)}, nil
}

func NewSESWithClient(client SESAPI) *SES {
	return &SES{client: client}
}

func (s *SES) Send(ctx context.Context, msgs []*gomail.Message) []Result {
	results := make([]Result, len(msgs))
	for i, m := range msgs {
		var buf bytes.Buffer
		if _, err := m.WriteTo(&buf); err != nil {
			results[i].Err = fmt.Errorf("failed to encode email: %w", err)
			continue
		}
		out, err := s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
			RawMessage: &types.RawMessage{Data: buf.Bytes()},
		})
		if err != nil {
			results[i].Err = fmt.Errorf("ses send failed: %w", err)
			continue
		}
		results[i].ID = aws.ToString(out.MessageId)
	}
	return results
}
