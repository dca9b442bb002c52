package httpapi

// AgentCard is the service descriptor served at /.well-known/agent.json.
// The rendered JSON is cached so repeated reads are byte-identical for a
// fixed configuration.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills"`
}

// Capabilities advertises transport features.
type Capabilities struct {
	Streaming bool `json:"streaming"`
}

// Skill describes one advertised capability of the agent.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples"`
}

// DefaultModes are the input/output modes all demo agents speak.
var DefaultModes = []string{"text", "text/plain"}
