package pac

import (
	"encoding/json"
	"slices"
	"strings"
)

// NonInteractiveFlag puts pac into scripted JSON-lines mode.
const NonInteractiveFlag = "--non-interactive"

// Command is an immutable list of pac argument tokens, e.g. ["auth", "list"].
// Two commands are equal when their tokens are equal; in-flight commands are
// distinguished only by submission order.
type Command struct {
	args []string
}

// NewCommand copies tokens into a new Command.
func NewCommand(tokens ...string) Command {
	return Command{args: slices.Clone(tokens)}
}

// Tokens returns a copy of the command's tokens.
func (c Command) Tokens() []string {
	return slices.Clone(c.args)
}

// Len returns the number of tokens.
func (c Command) Len() int {
	return len(c.args)
}

// String renders the tokens separated by spaces, for logs and cache keys.
func (c Command) String() string {
	return strings.Join(c.args, " ")
}

// Equal reports whether both commands carry the same tokens.
func (c Command) Equal(other Command) bool {
	return slices.Equal(c.args, other.args)
}

// Verb returns the leading non-flag tokens (at most two), e.g. "auth list"
// for ["auth", "list", "--index", "1"]. Used as a low-cardinality label.
func (c Command) Verb() string {
	var parts []string
	for _, tok := range c.args {
		if len(parts) == 2 || strings.HasPrefix(tok, "-") {
			break
		}
		parts = append(parts, tok)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " ")
}

// wireRequest is the JSON shape pac reads on stdin.
type wireRequest struct {
	Arguments []string `json:"Arguments"`
}

// MarshalJSON encodes the command in pac's request shape.
func (c Command) MarshalJSON() ([]byte, error) {
	args := c.args
	if args == nil {
		args = []string{}
	}
	return json.Marshal(wireRequest{Arguments: args})
}

// UnmarshalJSON decodes pac's request shape.
func (c *Command) UnmarshalJSON(data []byte) error {
	var req wireRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	c.args = req.Arguments
	return nil
}

// encodeLine returns the command as a single newline-terminated JSON line.
func (c Command) encodeLine() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// exitCommand asks pac to terminate. pac does not reply to it.
var exitCommand = NewCommand("exit")
