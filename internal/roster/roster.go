package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"call-relay/internal/observability"
)

// Direction of a call relative to the support team.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// Agent is one entry in the agent directory.
type Agent struct {
	Name        string `json:"name"`
	SlackHandle string `json:"slack_handle"`
	Department  string `json:"department"`
	Team        string `json:"team"`
}

// DefaultAgent is used when a phone number has no directory entry.
var DefaultAgent = Agent{
	Name:        "Support Agent",
	SlackHandle: "@support",
	Department:  "Customer Success",
	Team:        "Support",
}

// Roster maps agent phone numbers to directory entries. The mapping file is
// a JSON object keyed by phone number; top-level keys starting with "_" are
// metadata and skipped.
type Roster struct {
	path          string
	supportNumber string
	logger        *observability.Logger

	mu     sync.RWMutex
	agents map[string]Agent
}

func New(path, supportNumber string, logger *observability.Logger) *Roster {
	return &Roster{
		path:          path,
		supportNumber: supportNumber,
		logger:        logger,
		agents:        make(map[string]Agent),
	}
}

// Load reads the mapping file and swaps in the new directory. The previous
// directory stays in place when the file is missing or malformed.
func (r *Roster) Load(ctx context.Context) error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read agent mapping: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse agent mapping: %w", err)
	}

	agents := make(map[string]Agent, len(raw))
	for key, value := range raw {
		if strings.HasPrefix(key, "_") {
			continue
		}
		var agent Agent
		if err := json.Unmarshal(value, &agent); err != nil {
			r.logger.Warn(observability.WithFields(ctx,
				observability.Field{Key: "mapping_key", Value: key}),
				"skipping malformed agent mapping entry")
			continue
		}
		agents[NormalizePhone(key)] = agent
	}

	r.mu.Lock()
	r.agents = agents
	r.mu.Unlock()

	r.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "agent_count", Value: len(agents)}),
		"agent mapping loaded")
	return nil
}

// Lookup finds the directory entry for a phone number.
func (r *Roster) Lookup(phone string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[NormalizePhone(phone)]
	return agent, ok
}

// AgentInfo returns the directory entry for a phone number, falling back to
// the default support identity.
func (r *Roster) AgentInfo(phone string) Agent {
	if agent, ok := r.Lookup(phone); ok {
		return agent
	}
	return DefaultAgent
}

// IsKnownParty reports whether the phone number belongs to a roster agent or
// the support line.
func (r *Roster) IsKnownParty(phone string) bool {
	if _, ok := r.Lookup(phone); ok {
		return true
	}
	return r.isSupportNumber(phone)
}

// Direction classifies a call by its originating number: calls from an agent
// or the support line are outgoing, everything else is incoming.
func (r *Roster) Direction(fromNumber string) string {
	if _, ok := r.Lookup(fromNumber); ok {
		return DirectionOutgoing
	}
	if r.isSupportNumber(fromNumber) {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

func (r *Roster) isSupportNumber(phone string) bool {
	support := NormalizePhone(r.supportNumber)
	return support != "" && strings.Contains(NormalizePhone(phone), support)
}

// Size returns the number of loaded directory entries.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// NormalizePhone strips formatting characters so numbers compare by digits.
func NormalizePhone(phone string) string {
	replacer := strings.NewReplacer("+", "", "-", "", " ", "", "(", "", ")", "")
	return replacer.Replace(phone)
}
