package protocol

import "encoding/json"

// Environment describes the client's runtime environment as carried in the
// session context.
type Environment struct {
	Platform     string          `json:"platform,omitempty"`
	Version      string          `json:"version,omitempty"`
	Capabilities []string        `json:"capabilities,omitempty"`
	Limits       json.RawMessage `json:"limits,omitempty"`
}

// Context is the session-scoped state attached to outgoing requests and
// merged back from responses. Fields the client does not know about are
// kept verbatim in Extra so that a round trip through this client never
// drops server-defined data.
type Context struct {
	SessionID    string            `json:"sessionId,omitempty"`
	UserID       string            `json:"userId,omitempty"`
	Workspace    string            `json:"workspace,omitempty"`
	Environment  *Environment      `json:"environment,omitempty"`
	Conversation json.RawMessage   `json:"conversation,omitempty"`
	Tools        []json.RawMessage `json:"tools,omitempty"`
	Resources    []json.RawMessage `json:"resources,omitempty"`

	// Extra holds fields this client version does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownContextKeys are the wire names handled by the typed fields above.
var knownContextKeys = map[string]bool{
	"sessionId":    true,
	"userId":       true,
	"workspace":    true,
	"environment":  true,
	"conversation": true,
	"tools":        true,
	"resources":    true,
}

type contextAlias Context

// UnmarshalJSON decodes the typed fields and stashes everything else in
// Extra.
func (c *Context) UnmarshalJSON(data []byte) error {
	var alias contextAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Context(alias)
	for key, value := range raw {
		if knownContextKeys[key] {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]json.RawMessage)
		}
		c.Extra[key] = value
	}
	return nil
}

// MarshalJSON emits the typed fields plus any preserved unknown fields.
func (c *Context) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(contextAlias(*c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range c.Extra {
		if _, exists := merged[key]; !exists {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		// Context is built from JSON-serializable fields only; a marshal
		// failure means a caller stored something unencodable in Extra.
		return &Context{}
	}
	var out Context
	if err := json.Unmarshal(data, &out); err != nil {
		return &Context{}
	}
	return &out
}

// Merge shallow-merges fragment into c: set fields of fragment overwrite
// the corresponding fields of c, unset fields leave c untouched.
func (c *Context) Merge(fragment *Context) {
	if fragment == nil {
		return
	}
	if fragment.SessionID != "" {
		c.SessionID = fragment.SessionID
	}
	if fragment.UserID != "" {
		c.UserID = fragment.UserID
	}
	if fragment.Workspace != "" {
		c.Workspace = fragment.Workspace
	}
	if fragment.Environment != nil {
		c.Environment = fragment.Environment
	}
	if fragment.Conversation != nil {
		c.Conversation = fragment.Conversation
	}
	if fragment.Tools != nil {
		c.Tools = fragment.Tools
	}
	if fragment.Resources != nil {
		c.Resources = fragment.Resources
	}
	for key, value := range fragment.Extra {
		if c.Extra == nil {
			c.Extra = make(map[string]json.RawMessage)
		}
		c.Extra[key] = value
	}
}
