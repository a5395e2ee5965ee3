package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"rtlopt/internal/diag"
	"rtlopt/internal/emit"
	"rtlopt/internal/frontend"
	"rtlopt/internal/ir"
	"rtlopt/internal/passes"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "opt":
		return runOpt(args[1:])
	case "check":
		return runCheck(args[1:])
	case "dump":
		return runDump(args[1:])
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "rtlopt logic optimizer\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  rtlopt <command> [options] <design.json>\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  opt        Optimize a design and emit the resulting netlist\n")
	fmt.Fprintf(os.Stderr, "  check      Run structural validation and analyzers only\n")
	fmt.Fprintf(os.Stderr, "  dump       Print the linked IR without optimizing\n")
}

func runOpt(args []string) error {
	fs := flag.NewFlagSet("opt", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	output := fs.String("o", "", "output file path (stdout when omitted)")
	flatten := fs.Bool("flatten", false, "inline the instance hierarchy into the top module")
	strict := fs.Bool("strict", false, "treat warnings as errors")
	maxRounds := fs.Int("max-rounds", passes.DefaultMaxRounds, "optimization fixpoint round cap")
	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("opt requires exactly one design file")
	}

	reporter := diag.NewReporter(os.Stderr, *diagFormat)
	reporter.SetStrict(*strict)
	defer reporter.Flush()

	design, err := frontend.Load(fs.Arg(0), reporter)
	if err != nil {
		return err
	}

	optimized, err := passes.Optimize(design, reporter, passes.Options{
		Flatten:   *flatten,
		MaxRounds: *maxRounds,
	})
	if err != nil {
		return err
	}
	if reporter.HasErrors() {
		return fmt.Errorf("errors reported during optimization")
	}
	return emit.Emit(optimized, *output)
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	strict := fs.Bool("strict", false, "treat warnings as errors")
	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("check requires exactly one design file")
	}

	reporter := diag.NewReporter(os.Stderr, *diagFormat)
	reporter.SetStrict(*strict)
	defer reporter.Flush()

	design, err := frontend.Load(fs.Arg(0), reporter)
	if err != nil {
		return err
	}
	if err := passes.Check(design, reporter); err != nil {
		return err
	}
	if reporter.HasErrors() {
		return fmt.Errorf("errors reported during checking")
	}
	return nil
}

func runDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	output := fs.String("o", "", "output file path (stdout when omitted)")
	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("dump requires exactly one design file")
	}

	reporter := diag.NewReporter(os.Stderr, *diagFormat)
	defer reporter.Flush()

	design, err := frontend.Load(fs.Arg(0), reporter)
	if err != nil {
		return err
	}
	return withOutputWriter(*output, func(w io.Writer) error {
		ir.Dump(design, w)
		return nil
	})
}

func withOutputWriter(path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = fn(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
