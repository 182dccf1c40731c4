package engine

import (
	"context"
	"fmt"
	"strings"

	ferrors "github.com/sambeau/flume/pkg/flume/errors"
	"github.com/sambeau/flume/pkg/flume/table"
)

// Summary lists every command with its one-line description.
func (r *Registry) Summary() []string {
	var lines []string
	for _, c := range r.Commands() {
		lines = append(lines, fmt.Sprintf("%12s   %s", c.Name, c.Summary))
	}
	return lines
}

// Describe returns the help text for one command.
func (r *Registry) Describe(name string) ([]string, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	lines := []string{
		c.Name + " " + strings.ToLower(c.Summary[:1]) + c.Summary[1:],
		"",
		"Syntax:",
		"  " + c.Syntax,
	}
	if len(c.Examples) > 0 {
		lines = append(lines, "", "Examples:")
		for _, ex := range c.Examples {
			lines = append(lines, "  "+ex)
		}
	}
	if c.Permission != PermNone {
		lines = append(lines, "", fmt.Sprintf("Requires the %s permission.", c.Permission))
	}
	return lines, nil
}

func opHelp(_ context.Context, c *Call) (*table.Table, error) {
	log := c.Logger()
	commands := c.Engine().Commands()
	if c.Stmt.Topic == "" {
		for _, line := range commands.Summary() {
			log.LogLine(line)
		}
		return nil, nil
	}

	lines, err := commands.Describe(c.Stmt.Topic)
	if err != nil {
		log.LogLine("No HELP exists for " + c.Stmt.Topic)
		if fe, ok := ferrors.As(err); ok {
			for _, hint := range fe.Hints {
				log.LogLine(hint)
			}
		}
		return nil, nil
	}
	for _, line := range lines {
		log.LogLine(line)
	}
	return nil, nil
}
