package session

import (
	"fmt"
	"io"

	"github.com/Dawoodoz/dsrbuild/internal/script"
)

type selfCheck struct {
	name string
	run  func() error
}

func expectString(name, got, want string) selfCheck {
	return selfCheck{name: name, run: func() error {
		if got != want {
			return fmt.Errorf("got %q, want %q", got, want)
		}
		return nil
	}}
}

// RunSelfTests runs a fixed battery of tokenizer and expression-evaluation
// checks in-process, printing one PASS/FAIL line per check to out, and
// returns the number of failures.
func RunSelfTests(out io.Writer) int {
	lookup := func(identifier string) string {
		if identifier == "x" {
			return "7"
		}
		return ""
	}
	checks := []selfCheck{
		expectString("tokenize splits atomic characters", fmt.Sprintf("%v", script.Tokenize("a(b)")[:3]), "[a ( b]"),
		func() selfCheck {
			tokens := script.Tokenize("1 + 2 * 3")
			value, err := script.EvaluateAsInteger(tokens, 0, len(tokens)-2, lookup)
			return selfCheck{name: "multiplicative binds tighter than additive", run: func() error {
				if err != nil {
					return err
				}
				if value != 7 {
					return fmt.Errorf("got %d, want 7", value)
				}
				return nil
			}}
		}(),
		func() selfCheck {
			tokens := script.Tokenize("\"a\" & \"b\"")
			value, err := script.EvaluateAsString(tokens, 0, len(tokens)-2, lookup)
			return selfCheck{name: "concatenation joins two quoted strings", run: func() error {
				if err != nil {
					return err
				}
				if value != "ab" {
					return fmt.Errorf("got %q, want \"ab\"", value)
				}
				return nil
			}}
		}(),
		func() selfCheck {
			tokens := script.Tokenize("x + 1")
			value, err := script.EvaluateAsInteger(tokens, 0, len(tokens)-2, lookup)
			return selfCheck{name: "identifier lookup resolves a bound variable", run: func() error {
				if err != nil {
					return err
				}
				if value != 8 {
					return fmt.Errorf("got %d, want 8", value)
				}
				return nil
			}}
		}(),
		func() selfCheck {
			tokens := script.Tokenize("not (1 == 2)")
			value, err := script.EvaluateAsInteger(tokens, 0, len(tokens)-2, lookup)
			return selfCheck{name: "not inverts a false comparison", run: func() error {
				if err != nil {
					return err
				}
				if value != 1 {
					return fmt.Errorf("got %d, want 1", value)
				}
				return nil
			}}
		}(),
	}

	failures := 0
	for _, check := range checks {
		if err := check.run(); err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", check.name, err)
			failures++
		} else {
			fmt.Fprintf(out, "PASS %s\n", check.name)
		}
	}
	return failures
}
