// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/traylinx/tess/internal/agent"
	"github.com/traylinx/tess/internal/orchestrator"
)

const prompt = "tess> "

// commandSession is the part of agent.Session the console drives.
type commandSession interface {
	Handle(ctx context.Context, text string, sink orchestrator.Sink) agent.Reply
	Clear()
}

// console is the interactive front end. Input lines are read by one goroutine so both
// the prompt loop and confirmation questions can wait on them with a context.
type console struct {
	lines chan string

	mu  sync.Mutex
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{lines: make(chan string), out: out}
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
	return c
}

// next returns the next input line. ok is false at end of input or when ctx is done.
func (c *console) next(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-c.lines:
		return line, ok
	}
}

func (c *console) write(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Print is the output sink for actions.
func (c *console) Print(line string) {
	c.write("%s\n", line)
}

// PrintReply shows the outcome of a command.
func (c *console) PrintReply(r agent.Reply) {
	if r.Message == "" {
		return
	}
	c.write("%s\n", r.Message)
}

// Confirm asks whether a dangerous command should run. Anything but y or yes declines.
func (c *console) Confirm(ctx context.Context, command string) bool {
	c.write("Execute: %s? [y/N]: ", command)
	answer, ok := c.next(ctx)
	if !ok {
		c.write("\n")
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// Run reads commands until exit, end of input or ctx cancellation.
func (c *console) Run(ctx context.Context, s commandSession) {
	c.write("TESS ready. Type 'help' for commands, 'exit' to quit.\n")
	for {
		c.write(prompt)
		line, ok := c.next(ctx)
		if !ok {
			c.write("\n")
			return
		}
		text := strings.TrimSpace(line)
		switch strings.ToLower(text) {
		case "":
			continue
		case "exit", "quit":
			c.write("Goodbye.\n")
			return
		case "help":
			c.printHelp()
			continue
		case "clear":
			s.Clear()
			c.write("Conversation history cleared.\n")
			continue
		}
		c.PrintReply(s.Handle(ctx, text, c.Print))
	}
}

func (c *console) printHelp() {
	c.write("Type a request in plain language, for example:\n")
	c.write("  open firefox\n")
	c.write("  list the files in ~/Downloads\n")
	c.write("  search for golang generics\n")
	c.write("\nConsole commands:\n")
	c.write("  help           Show this help\n")
	c.write("  clear          Forget the conversation history\n")
	c.write("  exit, quit     Leave tess\n")
}
