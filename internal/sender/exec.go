package sender

import (
	"context"
	"os/exec"
	"strings"
	"time"

	logx "autotap/pkg/logx"
)

const actionPlaceholder = "{action}"

// execSender shells out to an injector binary (xdotool, ydotool, wtype, ...)
// for every firing. Availability means the binary resolves on PATH.
type execSender struct {
	command string
	args    []string
	timeout time.Duration
	log     logx.Logger
}

func newExecSender(cfg Config, log logx.Logger) *execSender {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		command = "xdotool"
	}
	args := cfg.Args
	if len(args) == 0 {
		args = []string{"key"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &execSender{
		command: command,
		args:    append([]string(nil), args...),
		timeout: timeout,
		log:     log.With(logx.String("comp", "sender"), logx.String("command", command)),
	}
}

func (s *execSender) Available() bool {
	_, err := exec.LookPath(s.command)
	return err == nil
}

func (s *execSender) Send(actionID string) bool {
	args := s.buildArgs(actionID)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.command, args...).CombinedOutput()
	if err != nil {
		s.log.Warn("injection failed",
			logx.String("action", actionID),
			logx.Err(err),
			logx.String("output", strings.TrimSpace(string(out))),
		)
		return false
	}
	return true
}

// buildArgs substitutes the {action} placeholder, or appends the ID when the
// template has no placeholder.
func (s *execSender) buildArgs(actionID string) []string {
	args := make([]string, 0, len(s.args)+1)
	substituted := false
	for _, a := range s.args {
		if strings.Contains(a, actionPlaceholder) {
			a = strings.ReplaceAll(a, actionPlaceholder, actionID)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, actionID)
	}
	return args
}
