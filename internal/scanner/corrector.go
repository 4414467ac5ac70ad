package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// PromptCorrector asks on out for a new value of every failing field and
// reads answers line by line from in. An empty answer gives up.
type PromptCorrector struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewPromptCorrector(in io.Reader, out io.Writer) *PromptCorrector {
	return &PromptCorrector{in: bufio.NewScanner(in), out: out}
}

// NewLinePromptCorrector shares lines with a caller that reads the same input.
func NewLinePromptCorrector(lines *bufio.Scanner, out io.Writer) *PromptCorrector {
	return &PromptCorrector{in: lines, out: out}
}

func (p *PromptCorrector) Correct(ctx context.Context, r Raw, errs []FieldError) (Raw, bool) {
	fixed := make(Raw, len(r))
	for k, v := range r {
		fixed[k] = v
	}

	for _, fe := range errs {
		if ctx.Err() != nil {
			return nil, false
		}
		fmt.Fprintf(p.out, "%s (current %q): ", fe.Message, r.String(fe.Field))
		if !p.in.Scan() {
			return nil, false
		}
		answer := strings.TrimSpace(p.in.Text())
		if answer == "" {
			return nil, false
		}
		fixed[fe.Field] = answer
	}
	return fixed, true
}
