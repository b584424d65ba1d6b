package mail

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m := &SMTPMailer{
		Host:   "smtp.example.com",
		Port:   "2525",
		Sender: "billing@example.com",
		sendMail: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, string(msg)
			return nil
		},
	}

	require.NoError(t, m.Send(context.Background(), "c1@example.com", "Payment received", "Thanks"))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, []string{"c1@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: billing@example.com\r\nTo: c1@example.com\r\nSubject: Payment received\r\n"))
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nThanks"))
}

func TestSMTPMailer_Rejects(t *testing.T) {
	m := &SMTPMailer{}
	assert.Error(t, m.Send(context.Background(), "a@example.com", "s", "b"))

	m.Host = "smtp.example.com"
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return nil }
	assert.Error(t, m.Send(context.Background(), "a@example.com\r\nBcc: x@example.com", "s", "b"))
}
