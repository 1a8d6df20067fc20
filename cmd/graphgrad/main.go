// Package main provides the graphgrad CLI, which compiles forward graphs
// described in YAML into backward graphs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/born-ml/graphgrad/internal/autodiff"
	"github.com/born-ml/graphgrad/internal/autodiff/ops"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if err := run(context.Background(), flag.Args(), os.Stdout); err != nil {
		klog.ErrorS(err, "graphgrad failed")
		klog.Flush()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "graphgrad - gradient graph compiler")
	fmt.Fprintf(os.Stderr, "Version: %s\n\n", version)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  compile -f graph.yaml [-share] [-stats]   Build the backward graph")
	fmt.Fprintln(os.Stderr, "  kinds                                     List operator kinds with gradient rules")
	fmt.Fprintln(os.Stderr, "  version                                   Show version")
	fmt.Fprintln(os.Stderr, "")
	flag.PrintDefaults()
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage()
		return nil
	}
	switch args[0] {
	case "version":
		fmt.Fprintf(out, "graphgrad %s\n", version)
		return nil
	case "kinds":
		fmt.Fprintln(out, strings.Join(ops.Default().Kinds(), "\n"))
		return nil
	case "compile":
		return compileCmd(ctx, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func compileCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	file := fs.String("f", "", "YAML graph file")
	share := fs.Bool("share", false, "share gradient buffers (overrides the file)")
	stats := fs.Bool("stats", false, "print build statistics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("compile: -f is required")
	}

	gf, err := loadGraphFile(*file)
	if err != nil {
		return err
	}
	req, err := gf.request()
	if err != nil {
		return err
	}
	if *share {
		req.Share = true
	}

	res, err := autodiff.Compile(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprint(out, res.Graph.String())
	if *stats {
		s := res.Stats
		fmt.Fprintf(out, "# forward=%d pruned=%d backward=%d accumulations=%d seeds=%d slots=%d\n",
			s.Forward, s.Pruned, s.Emitted, s.Accumulations, s.Seeds, res.Slots)
	}
	return nil
}
