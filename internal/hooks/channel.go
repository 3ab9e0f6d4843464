package hooks

import "strings"

// Channel is a named lifecycle point hooks attach to.
type Channel int

const (
	PreToolUse Channel = iota
	PostToolUse
	UserPromptSubmit
	Notification
	Stop
	AgentStart
	AgentComplete
	AgentError
	IssueAssigned
	PRCreated
	WorkflowTriggered
	numChannels
)

var channelNames = [numChannels]string{
	PreToolUse:        "preToolUse",
	PostToolUse:       "postToolUse",
	UserPromptSubmit:  "userPromptSubmit",
	Notification:      "notification",
	Stop:              "stop",
	AgentStart:        "agentStart",
	AgentComplete:     "agentComplete",
	AgentError:        "agentError",
	IssueAssigned:     "issueAssigned",
	PRCreated:         "prCreated",
	WorkflowTriggered: "workflowTriggered",
}

// Channels returns every channel in declaration order.
func Channels() []Channel {
	out := make([]Channel, numChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c >= 0 && c < numChannels
}

func (c Channel) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return channelNames[c]
}

// Critical reports whether a hook failure on c aborts the chain and is
// returned to the caller.
func (c Channel) Critical() bool {
	return c == Stop || c == AgentError
}

// ParseChannel resolves a channel name, ignoring case.
func ParseChannel(name string) (Channel, bool) {
	name = strings.TrimSpace(name)
	for i, n := range channelNames {
		if strings.EqualFold(n, name) {
			return Channel(i), true
		}
	}
	return 0, false
}
