package pac

import (
	"encoding/json"
	"testing"
)

func TestCommand_TokensAreCopied(t *testing.T) {
	tokens := []string{"auth", "list"}
	cmd := NewCommand(tokens...)

	tokens[0] = "org"
	if cmd.String() != "auth list" {
		t.Errorf("NewCommand did not copy input: %q", cmd.String())
	}

	out := cmd.Tokens()
	out[1] = "who"
	if cmd.String() != "auth list" {
		t.Errorf("Tokens() exposed internal slice: %q", cmd.String())
	}
	if cmd.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cmd.Len())
	}
}

func TestCommand_Equal(t *testing.T) {
	a := NewCommand("auth", "select", "--index", "2")
	b := NewCommand("auth", "select", "--index", "2")
	c := NewCommand("auth", "select", "--index", "3")

	if !a.Equal(b) {
		t.Error("identical commands should be equal")
	}
	if a.Equal(c) {
		t.Error("different commands should not be equal")
	}
	if !NewCommand().Equal(Command{}) {
		t.Error("empty commands should be equal")
	}
}

func TestCommand_Verb(t *testing.T) {
	tests := []struct {
		tokens []string
		want   string
	}{
		{[]string{"auth", "list"}, "auth list"},
		{[]string{"auth", "select", "--index", "1"}, "auth select"},
		{[]string{"org", "who", "--json"}, "org who"},
		{[]string{"exit"}, "exit"},
		{[]string{"--help"}, "unknown"},
		{nil, "unknown"},
	}

	for _, tt := range tests {
		if got := NewCommand(tt.tokens...).Verb(); got != tt.want {
			t.Errorf("Verb(%v) = %q, want %q", tt.tokens, got, tt.want)
		}
	}
}

func TestCommand_WireFormat(t *testing.T) {
	data, err := NewCommand("pages", "list", "--verbose").encodeLine()
	if err != nil {
		t.Fatalf("encodeLine() error = %v", err)
	}
	want := `{"Arguments":["pages","list","--verbose"]}` + "\n"
	if string(data) != want {
		t.Errorf("encodeLine() = %q, want %q", data, want)
	}

	empty, err := json.Marshal(NewCommand())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(empty) != `{"Arguments":[]}` {
		t.Errorf("empty command = %s, want Arguments as an empty array", empty)
	}

	exit, _ := exitCommand.encodeLine()
	if string(exit) != `{"Arguments":["exit"]}`+"\n" {
		t.Errorf("exit command = %q", exit)
	}
}

func TestCommand_UnmarshalJSON(t *testing.T) {
	var cmd Command
	if err := json.Unmarshal([]byte(`{"Arguments":["org","select","--environment","https://x"]}`), &cmd); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !cmd.Equal(NewCommand("org", "select", "--environment", "https://x")) {
		t.Errorf("decoded = %v", cmd.Tokens())
	}
}
