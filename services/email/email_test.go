package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core"
	logsvc "github.com/trezcool/alama/services/logger"
)

func reviewedMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Teacher T", Address: "teacher@test.cd"}},
		Subject:      "Midterm grades approved",
		TemplateName: "submission_reviewed",
		TemplateData: map[string]interface{}{
			"Name":      "Teacher T",
			"GradeType": "Midterm",
			"Class":     "MATH101 - Section A",
			"Status":    "declined",
			"Reviewer":  "Admin A",
			"Remarks":   "Zero has no score",
			"ClassID":   "42",
		},
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig(), logsvc.NewDiscardLogger())

	svc.SendMessages(
		reviewedMessage(),
		&core.EmailMessage{Subject: "nobody", BodyStr: "dropped: no recipients"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@test.cd"}}, Subject: "empty"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Contains(t, msg.TextContent, "Your Midterm grades for MATH101 - Section A were declined by Admin A.")
	assert.Contains(t, msg.TextContent, "Remarks: Zero has no score")
	assert.Contains(t, msg.TextContent, "http://localhost:8000/teacher/classes/42")
	assert.Contains(t, msg.HTMLContent, "Zero has no score")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_attachments(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig(), logsvc.NewDiscardLogger())

	msg := &core.EmailMessage{
		To:      []mail.Address{{Address: "admin@test.cd"}},
		Subject: "grade sheet",
		BodyStr: "see attached",
	}
	require.NoError(t, msg.Attach(strings.NewReader("%PDF-1.3"), "sheet.pdf", "application/pdf"))
	svc.SendMessages(msg)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "see attached", sent[0].TextContent)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "JVBERi0xLjM=", sent[0].Attachments[0].Content.String())
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, logsvc.NewDiscardLogger()).(*sendgridService)

	msg := reviewedMessage()
	require.NoError(t, msg.Render(conf.FrontendBaseURL))
	sg := svc.prepare(*msg)

	assert.Equal(t, "noreply@localhost", sg.From.Address)
	require.Len(t, sg.Personalizations, 1)
	assert.Equal(t, "[Alama] Midterm grades approved", sg.Personalizations[0].Subject)
	require.Len(t, sg.Personalizations[0].To, 1)
	assert.Equal(t, "teacher@test.cd", sg.Personalizations[0].To[0].Address)
	require.Len(t, sg.Content, 2)
	assert.Equal(t, "text/plain", sg.Content[0].Type)
	assert.Equal(t, "text/html", sg.Content[1].Type)
}
