package mail

import (
	"bytes"
	"context"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSMTPSenderSend(t *testing.T) {
	d := new(recordingDialer)
	s := newSender(d, "alerts@example.com")

	err := s.Send(context.Background(), Message{
		To:      "asha@example.com",
		Subject: "Flooding reported in Mumbai",
		HTML:    "<p>stay safe</p>",
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	require.Equal(t, []string{"alerts@example.com"}, m.GetHeader("From"))
	require.Equal(t, []string{"asha@example.com"}, m.GetHeader("To"))
	require.Regexp(t, `^<[0-9a-f-]+@example\.com>$`, m.GetHeader("Message-ID")[0])

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "stay safe")
}

func TestSMTPSenderErrors(t *testing.T) {
	s := newSender(&recordingDialer{err: errors.New("relay down")}, "alerts@example.com")

	require.Error(t, s.Send(context.Background(), Message{}))
	require.ErrorContains(t, s.Send(context.Background(), Message{To: "a@b.c"}), "relay down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Send(ctx, Message{To: "a@b.c"}), context.Canceled)
}

func TestNewSMTPSender(t *testing.T) {
	_, err := NewSMTPSender(Config{})
	require.Error(t, err)

	_, err = NewSMTPSender(Config{Host: "smtp.example.com", User: "nobody"})
	require.Error(t, err)

	s, err := NewSMTPSender(Config{Host: "smtp.example.com", User: "ops@example.com"})
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", s.from)
}
