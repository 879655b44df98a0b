package notify

import (
	"fmt"
	"html"

	"alcyxob/fitness-sessions/internal/domain"
)

type message struct {
	subject string
	text    string
	html    string
	sms     string
}

func requestMessage(trainer, client *domain.User) message {
	name := displayName(client, "A client")
	text := fmt.Sprintf("Hi %s, %s requested a video session with you. Open your requests to approve or reject it.",
		displayName(trainer, "there"), name)
	return message{
		subject: "New video session request",
		text:    text,
		html:    "<p>" + html.EscapeString(text) + "</p>",
		sms:     fmt.Sprintf("%s requested a video session.", name),
	}
}

func responseMessage(client *domain.User, p SessionResponsePayload) message {
	greeting := fmt.Sprintf("Hi %s, ", displayName(client, "there"))
	var m message
	if p.Approved {
		m.subject = "Your video session was approved"
		m.text = greeting + fmt.Sprintf("%s approved your video session request. You can join 10 minutes before the start.", p.TrainerName)
		m.sms = fmt.Sprintf("%s approved your video session.", p.TrainerName)
	} else {
		m.subject = "Your video session request was declined"
		m.text = greeting + fmt.Sprintf("%s declined your video session request.", p.TrainerName)
		m.sms = fmt.Sprintf("%s declined your video session.", p.TrainerName)
		if p.Reason != "" {
			m.text += " Reason: " + p.Reason
			m.sms += " Reason: " + p.Reason
		}
	}
	m.html = "<p>" + html.EscapeString(m.text) + "</p>"
	return m
}

func displayName(u *domain.User, fallback string) string {
	if u == nil || u.Name == "" {
		return fallback
	}
	return u.Name
}
