// Package pac drives the Power Platform CLI ("pac") as a persistent child
// process.
//
// # Overview
//
// pac supports a scripted mode (--non-interactive) in which it reads one
// JSON command per line on stdin and writes one JSON reply per line on
// stdout. Keeping a single process alive avoids paying the CLI's startup
// cost on every call. The package is layered:
//
//   - processManager owns the *exec.Cmd: pipes, stderr capture, exit
//     monitoring and graceful stop.
//   - LineFramer turns arbitrary stdout chunks into complete reply lines.
//   - Channel pairs each written command with the next reply through a
//     handoff.Queue and exposes ExecuteCommand.
//   - Wrapper offers typed operations (AuthList, OrgWho, ...) on top of any
//     Executor and decodes the reply envelope.
//
// # Wire Protocol
//
// Requests are written as
//
//	{"Arguments":["auth","list"]}
//
// followed by a newline. Every reply is a JSON object carrying Status
// ("Success" or "Failed") and optionally Results, Errors and Information.
// Right after launch pac writes one unsolicited handshake reply which must
// report Success before any command is sent.
//
// The protocol has no correlation id. Replies are matched to requests purely
// by position, so pac must answer each command exactly once and in order.
// Channel keeps its side of that bargain by writing a command and claiming
// the next reply slot under one lock; concurrent callers are therefore safe.
//
// # Framing
//
// Reply boundaries are detected heuristically: stdout is split on newlines
// and a trailing segment that does not end in "}" is held back until more
// output arrives. Pretty-printed JSON, or a reply whose text ends in "}"
// before the object is actually complete, will confuse the framer. pac does
// not emit either today.
//
// # Failure Handling
//
// Commands are bounded by their context and Config.CommandTimeout. When the
// child exits, every pending and future call fails with an *ExitError
// carrying the captured stderr. A caller that times out keeps its reply
// slot, so the late reply is dropped instead of being handed to the next
// caller.
//
// # Usage
//
//	ch, err := pac.Open(ctx, pac.Config{Executable: path, WorkingDir: dir}, log)
//	if err != nil {
//	    return err
//	}
//	defer ch.Close()
//
//	w := pac.NewWrapper(ch)
//	profiles, err := w.AuthList(ctx)
package pac
