package registry

import (
	"log/slog"

	"github.com/cascadehq/cascade/pkg/nodes/condition"
	"github.com/cascadehq/cascade/pkg/nodes/email"
	"github.com/cascadehq/cascade/pkg/nodes/github"
	"github.com/cascadehq/cascade/pkg/nodes/httprequest"
	"github.com/cascadehq/cascade/pkg/nodes/jira"
	"github.com/cascadehq/cascade/pkg/nodes/lognode"
	"github.com/cascadehq/cascade/pkg/nodes/runtest"
	"github.com/cascadehq/cascade/pkg/nodes/setvariable"
	"github.com/cascadehq/cascade/pkg/nodes/slack"
	"github.com/cascadehq/cascade/pkg/nodes/transform"
	"github.com/cascadehq/cascade/pkg/nodes/trigger"
	"github.com/cascadehq/cascade/pkg/nodes/wait"
	"github.com/cascadehq/cascade/pkg/protocol"
)

// RegisterDefaults registers every built-in node type. Integration nodes
// resolve their credentials through the given source at execution time.
func RegisterDefaults(r *Registry, logger *slog.Logger, credentials protocol.CredentialSource) {
	r.Register(trigger.NewManualFactory())
	r.Register(trigger.NewScheduleFactory())
	r.Register(trigger.NewWebhookFactory())
	r.Register(trigger.NewEventFactory())

	r.Register(httprequest.NewFactory())
	r.Register(wait.NewFactory())
	r.Register(setvariable.NewFactory())
	r.Register(transform.NewFactory())
	r.Register(condition.NewFactory())
	r.Register(lognode.NewFactory(logger))

	r.Register(slack.NewFactory(credentials))
	r.Register(email.NewFactory(credentials))
	r.Register(jira.NewFactory(credentials))
	r.Register(github.NewFactory(credentials))
	r.Register(runtest.NewFactory(credentials))
}
