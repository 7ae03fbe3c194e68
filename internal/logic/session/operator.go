package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Prompt is shown before every operator read.
const Prompt = " Press 'Enter' to capture next image.\n Press 'x' to terminate imaging session: "

// Operator supplies one command line per call. Next blocks until the
// operator answers, the input ends (io.EOF) or ctx is cancelled.
type Operator interface {
	Next(ctx context.Context) (string, error)
}

// ConsoleOperator prompts on out and reads lines from in.
type ConsoleOperator struct {
	reader  *bufio.Reader
	out     io.Writer
	pending chan readResult // read still in flight after a cancelled Next
}

// NewConsoleOperator creates an operator reading from in and prompting on out.
func NewConsoleOperator(in io.Reader, out io.Writer) *ConsoleOperator {
	return &ConsoleOperator{
		reader:  bufio.NewReader(in),
		out:     out,
	}
}

type readResult struct {
	line string
	err  error
}

// Next prints the prompt and waits for one line, without its line ending.
// If ctx is cancelled first, ctx.Err() is returned and the read stays
// pending for the following call.
func (c *ConsoleOperator) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.pending == nil {
		if _, err := fmt.Fprint(c.out, Prompt); err != nil {
			return "", err
		}
		c.pending = make(chan readResult, 1)
		go c.read(c.pending)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-c.pending:
		c.pending = nil
		return r.line, r.err
	}
}

// read takes one whole line, however long. A final line without a newline
// is returned before io.EOF.
func (c *ConsoleOperator) read(done chan<- readResult) {
	line, err := c.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		done <- readResult{err: err}
		return
	}
	done <- readResult{line: strings.TrimRight(line, "\r\n")}
}
