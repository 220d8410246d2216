package notifiers

import (
	"context"
	"strings"

	"github.com/fsandov/airbrake-go/pkg/airbrake"
	"github.com/fsandov/airbrake-go/pkg/notice"
)

// AirbrakeNotifier forwards log entries to Airbrake. The first error value found
// in fields is the reported error; the other fields become params.
type AirbrakeNotifier struct {
	Client *airbrake.Notifier
	Logger string
}

func NewAirbrakeNotifier(client *airbrake.Notifier, logger string) *AirbrakeNotifier {
	return &AirbrakeNotifier{Client: client, Logger: logger}
}

func (n *AirbrakeNotifier) Notify(ctx context.Context, level string, message string, fields map[string]any) error {
	in := notice.Input{
		Stack: StackFromContext(ctx),
		Record: &notice.Record{
			Level:   strings.ToUpper(level),
			Logger:  n.Logger,
			Message: message,
		},
	}
	if sev, ok := notice.ParseSeverity(SeverityFromContext(ctx)); ok {
		in.Severity = sev
	} else if sev, ok := notice.ParseSeverity(level); ok {
		in.Severity = sev
	}

	params := make(map[string]any, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok && in.Err == nil {
			in.Err = err
			continue
		}
		params[k] = v
	}
	if len(params) > 0 {
		in.Params = params
	}

	_, err := n.Client.NotifyInput(context.WithoutCancel(ctx), in)
	return err
}
