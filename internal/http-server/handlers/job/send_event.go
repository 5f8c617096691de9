package job

import (
	"go-fairplay/internal/http-server/handlers/event"
)

type SendEventJob struct {
	Notifier event.Notifier
	Channel  string
	Event    string
	Data     map[string]interface{}
}

func (job *SendEventJob) Execute() {
	// the notifier already logs failures; an event is not worth retrying
	_ = job.Notifier.Trigger(job.Channel, job.Event, job.Data)
}
