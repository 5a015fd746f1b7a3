package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	message := buildMessage("PrintDesk <noreply@printdesk.example>", "ada@example.com", "Registration received", "Hi Ada,\n\nYour registration has been received.")

	lines := strings.Split(message, "\r\n")
	assert.Equal(t, "From: PrintDesk <noreply@printdesk.example>", lines[0])
	assert.Equal(t, "To: ada@example.com", lines[1])
	assert.Equal(t, "Subject: Registration received", lines[2])
	assert.Equal(t, "MIME-Version: 1.0", lines[3])
	assert.Equal(t, "Content-Type: text/plain; charset=utf-8", lines[4])
	assert.Equal(t, "", lines[5])
	assert.Contains(t, message, "Your registration has been received.")
}
