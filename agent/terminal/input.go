package terminal

import (
	"bufio"
	"fmt"
	"io"
)

// plainInput reads lines from any reader. It backs the terminal when input
// is piped, where line editing has nothing to offer.
type plainInput struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPlainInput returns a LineReader that writes prompts to out and reads
// lines from in.
func NewPlainInput(in io.Reader, out io.Writer) LineReader {
	return &plainInput{scanner: bufio.NewScanner(in), out: out}
}

func (p *plainInput) Prompt(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (p *plainInput) AppendHistory(string) {}
func (p *plainInput) Close() error         { return nil }
