package notify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeboard/earlyaccess/internal/observability"
)

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestRenderWelcome(t *testing.T) {
	msg, err := RenderWelcome("ada@example.com", "Ada <script>")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, WelcomeSubject, msg.Subject)
	assert.Contains(t, msg.HTML, "Hi Ada &lt;script&gt;,")

	anonymous, err := RenderWelcome("x@example.com", " ")
	require.NoError(t, err)
	assert.Contains(t, anonymous.HTML, "Hi there,")
}

func TestRenderReceipt(t *testing.T) {
	msg, err := RenderReceipt(Receipt{
		Email:     "c@example.com",
		Text:      "Vamos al mall later, okay?",
		Languages: []string{"English", "Spanish"},
	})
	require.NoError(t, err)
	assert.Equal(t, ReceiptSubject, msg.Subject)
	assert.Contains(t, msg.HTML, "Dear CodeBoard Contributor,")
	assert.Contains(t, msg.HTML, "English, Spanish")
	assert.NotContains(t, msg.HTML, "Context:")

	withContext, err := RenderReceipt(Receipt{Email: "c@example.com", Name: "Cy", Text: "t", Languages: []string{"a", "b"}, Context: "family chat"})
	require.NoError(t, err)
	assert.Contains(t, withContext.HTML, "Dear Cy,")
	assert.Contains(t, withContext.HTML, "<strong>Context:</strong> family chat")
}

func TestDirectCountsDeliveries(t *testing.T) {
	metrics := observability.NewMetrics()
	mailer := &recordingMailer{}
	direct := NewDirect(mailer, metrics)

	require.NoError(t, direct.SendWelcome(context.Background(), "a@example.com", "A"))
	require.NoError(t, direct.SendContributionReceipt(context.Background(), Receipt{Email: "a@example.com", Text: "t", Languages: []string{"x", "y"}}))
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, WelcomeSubject, mailer.sent[0].Subject)
	assert.Equal(t, ReceiptSubject, mailer.sent[1].Subject)

	mailer.err = errors.New("relay down")
	assert.Error(t, direct.SendWelcome(context.Background(), "a@example.com", "A"))

	body := scrape(t, metrics)
	assert.Contains(t, body, `earlyaccess_mail_events_total{kind="welcome",outcome="sent"} 1`)
	assert.Contains(t, body, `earlyaccess_mail_events_total{kind="welcome",outcome="failure"} 1`)
	assert.Contains(t, body, `earlyaccess_mail_events_total{kind="contribution_receipt",outcome="sent"} 1`)
}

func TestDirectWithoutMailer(t *testing.T) {
	assert.Error(t, NewDirect(nil, nil).SendWelcome(context.Background(), "a@example.com", ""))
}

// smtpSession is what the fake relay saw during one delivery.
type smtpSession struct {
	Auth string
	From string
	To   string
	Data string
}

// startRelay runs a minimal SMTP relay on loopback that accepts one message
// per connection and reports the session once the client quits.
func startRelay(t *testing.T) (int, <-chan smtpSession) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	sessions := make(chan smtpSession, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveRelay(conn, sessions)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, sessions
}

func serveRelay(conn net.Conn, sessions chan<- smtpSession) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	var s smtpSession
	_ = tp.PrintfLine("220 relay.test ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			_ = tp.PrintfLine("250-relay.test")
			_ = tp.PrintfLine("250 AUTH PLAIN")
		case "AUTH":
			s.Auth = line
			_ = tp.PrintfLine("235 2.7.0 accepted")
		case "MAIL":
			s.From = line
			_ = tp.PrintfLine("250 OK")
		case "RCPT":
			s.To = line
			_ = tp.PrintfLine("250 OK")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			body, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.Data = string(body)
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			sessions <- s
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

// startSilentRelay accepts connections and never sends the SMTP greeting.
func startSilentRelay(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	held := make(chan net.Conn, 8)
	t.Cleanup(func() {
		_ = ln.Close()
		for {
			select {
			case conn := <-held:
				_ = conn.Close()
			default:
				return
			}
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			select {
			case held <- conn:
			default:
				_ = conn.Close()
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestSMTPMailerSend(t *testing.T) {
	port, sessions := startRelay(t)
	mailer, err := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: port, Username: "bot@example.com", Password: "pw"})
	require.NoError(t, err)
	mailer.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, mailer.Send(context.Background(), Message{To: "u@example.com", Subject: "Hi", HTML: "<p>x</p>"}))

	var got smtpSession
	select {
	case got = <-sessions:
	case <-time.After(2 * time.Second):
		t.Fatal("relay saw no completed session")
	}
	assert.True(t, strings.HasPrefix(got.Auth, "AUTH PLAIN "))
	assert.Equal(t, "MAIL FROM:<bot@example.com>", got.From)
	assert.Equal(t, "RCPT TO:<u@example.com>", got.To)
	assert.True(t, strings.HasPrefix(got.Data, "From: bot@example.com\nTo: u@example.com\nSubject: Hi\n"))
	assert.Contains(t, got.Data, "Date: Sun, 01 Jun 2025 12:00:00 +0000\n")
	assert.Contains(t, got.Data, "Content-Type: text/html; charset=\"UTF-8\"\n\n<p>x</p>")

	assert.ErrorIs(t, mailer.Send(context.Background(), Message{}), ErrNoRecipient)
}

func TestSMTPMailerUnreachableRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	mailer, err := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: port, From: "a@example.com"})
	require.NoError(t, err)
	assert.Error(t, mailer.Send(context.Background(), Message{To: "u@example.com"}))
}

func TestSMTPMailerStalledRelay(t *testing.T) {
	t.Run("context deadline", func(t *testing.T) {
		mailer, err := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: startSilentRelay(t), From: "a@example.com"})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		start := time.Now()
		err = mailer.Send(ctx, Message{To: "u@example.com", Subject: "s", HTML: "b"})
		require.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("cancellation", func(t *testing.T) {
		mailer, err := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: startSilentRelay(t), From: "a@example.com"})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(150*time.Millisecond, cancel)
		start := time.Now()
		err = mailer.Send(ctx, Message{To: "u@example.com", Subject: "s", HTML: "b"})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("configured timeout", func(t *testing.T) {
		mailer, err := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: startSilentRelay(t), From: "a@example.com", Timeout: 200 * time.Millisecond})
		require.NoError(t, err)

		start := time.Now()
		err = mailer.Send(context.Background(), Message{To: "u@example.com", Subject: "s", HTML: "b"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestNewSMTPMailerValidation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{})
	assert.Error(t, err)
	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, LogMailer{}.Send(context.Background(), Message{To: "a@example.com", Subject: "s"}))
	assert.ErrorIs(t, LogMailer{}.Send(context.Background(), Message{}), ErrNoRecipient)
}

func scrape(t *testing.T, metrics *observability.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}
