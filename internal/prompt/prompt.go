package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/core-unit-bioinformatics/templsync/internal/syncerr"
)

// Asker obtains a yes/no decision from the operator.
type Asker interface {
	Confirm(question string) (bool, error)
}

// maxAttempts bounds how often an unusable answer is tolerated before the
// run is aborted. There is no default answer.
const maxAttempts = 3

var (
	affirmative = map[string]bool{"yes": true, "y": true, "yay": true}
	negative    = map[string]bool{"no": true, "n": true, "nay": true}
)

// Terminal asks questions on a line-oriented console.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates an Asker reading answers from in and writing
// questions to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Confirm prints the question and reads lines until one parses as yes or
// no, case-insensitively. After three unusable answers it gives up with an
// unanswered-prompt error.
func (t *Terminal) Confirm(question string) (bool, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprintf(t.out, "%s? (yes/no) ", question)

		line, err := t.in.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return false, fmt.Errorf("failed to read answer: %w", err)
		}

		answer := strings.ToLower(strings.TrimSpace(line))
		if affirmative[answer] {
			return true, nil
		}
		if negative[answer] {
			return false, nil
		}

		fmt.Fprintf(t.out, "That was a yes or no question, you answered: %q\n", answer)
		if attempt == maxAttempts-1 {
			fmt.Fprintln(t.out, "One last chance to answer properly.")
		}
	}

	return false, syncerr.Unanswered(question, maxAttempts)
}
