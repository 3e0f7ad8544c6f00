package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"isthisai/internal/config"
	"isthisai/internal/detector"
	logx "isthisai/pkg/logx"
)

const (
	// defaultModel is the CLI's model when neither --model nor MODEL_NAME
	// is set. The bot configures its own model separately.
	defaultModel = "ShantanuT01/BERT-tiny-RAID"

	// inferenceBase resolves a bare model name to an endpoint when no
	// explicit endpoint is configured.
	inferenceBase = "https://api-inference.huggingface.co/models/"

	envModel    = "MODEL_NAME"
	envEndpoint = "DETECTOR_ENDPOINT"
)

// errUsage marks input mistakes. main maps it to exit status 2 so scripts
// can tell bad invocations from classify failures (status 1).
var errUsage = errors.New("invalid usage")

type options struct {
	file        string
	stdin       bool
	interactive bool
	model       string
	endpoint    string
	token       string
}

// classifierFor builds the classifier from flags and environment.
// Tests swap it for a stub.
var classifierFor = func(opts options) (detector.Classifier, error) {
	model := resolveModel(opts.model)
	return detector.NewHTTP(detector.Config{
		Endpoint: resolveEndpoint(opts.endpoint, model),
		Token:    resolveToken(opts.token),
		Model:    model,
	}, logx.Nop())
}

func rootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "detect [text]",
		Short: "Score text for AI likelihood from the command line.",
		Long: `detect scores a piece of text with the same classifier the bot quotes in
replies, without touching Reddit. Give it text one of four ways: as a
positional argument, from a file, piped on stdin, or line by line in an
interactive loop.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(c *cobra.Command, args []string) error {
			if len(args) > 1 {
				fmt.Fprintln(c.ErrOrStderr(), "accepts at most one positional text argument")
				return errUsage
			}
			return nil
		},
		RunE: func(c *cobra.Command, args []string) error {
			return run(c, args, opts)
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		fmt.Fprintln(c.ErrOrStderr(), err)
		_ = c.Usage()
		return errUsage
	})

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "read text from a file")
	f.BoolVar(&opts.stdin, "stdin", false, "read text from standard input")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "prompt for text in a loop")
	f.StringVar(&opts.model, "model", "", "model name (default "+defaultModel+", env "+envModel+")")
	f.StringVar(&opts.endpoint, "endpoint", "", "inference endpoint URL (default derived from the model, env "+envEndpoint+")")
	f.StringVar(&opts.token, "token", "", "bearer token for the endpoint (env "+config.EnvDetectorToken+")")
	return cmd
}

func run(cmd *cobra.Command, args []string, opts options) error {
	positional := ""
	if len(args) == 1 {
		positional = args[0]
	}

	modes := 0
	for _, selected := range []bool{positional != "", opts.file != "", opts.stdin, opts.interactive} {
		if selected {
			modes++
		}
	}
	if modes > 1 {
		fmt.Fprintln(cmd.OutOrStdout(), "Choose only one input mode: positional text, --file, --stdin, or --interactive.")
		return errUsage
	}

	if opts.interactive {
		cls, err := classifierFor(opts)
		if err != nil {
			return err
		}
		return interact(cmd, cls)
	}

	text := strings.TrimSpace(positional)
	switch {
	case opts.file != "":
		raw, err := os.ReadFile(opts.file)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(string(raw))
	case opts.stdin:
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = strings.TrimSpace(string(raw))
	}
	if text == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No input text provided. Use positional text, --file, --stdin, or --interactive.")
		return errUsage
	}

	cls, err := classifierFor(opts)
	if err != nil {
		return err
	}
	return report(cmd.Context(), cmd.OutOrStdout(), cls, text)
}

// interact loops reading one text per line until EOF. A failed classify
// call ends the loop; an empty line just reprompts.
func interact(cmd *cobra.Command, cls detector.Classifier) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Interactive mode. Enter text to analyze. Press Ctrl-D to exit.")

	sc := bufio.NewScanner(cmd.InOrStdin())
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "\nText> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			fmt.Fprintln(out, "No input provided.")
			continue
		}
		if err := report(cmd.Context(), out, cls, text); err != nil {
			return err
		}
	}
}

func report(ctx context.Context, w io.Writer, cls detector.Classifier, text string) error {
	res, err := cls.Classify(ctx, text)
	if err != nil {
		return err
	}
	pct := int(math.Round(res.ProbabilityAI * 100))
	fmt.Fprintf(w, "AI likelihood: %d%%\n", pct)
	fmt.Fprintf(w, "Confidence: %s\n", detector.Band(res.ProbabilityAI))
	fmt.Fprintf(w, "Score: %.4f\n", res.ProbabilityAI)
	fmt.Fprintf(w, "Model label: %s\n", res.Label)
	fmt.Fprintf(w, "Words: %d\n", len(strings.Fields(text)))
	return nil
}

func resolveModel(flag string) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(envModel)); v != "" {
		return v
	}
	return defaultModel
}

func resolveEndpoint(flag, model string) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(envEndpoint)); v != "" {
		return v
	}
	return inferenceBase + model
}

func resolveToken(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(config.EnvDetectorToken)
}
