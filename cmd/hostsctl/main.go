// Command hostsctl lists and edits the siteguard block in a hosts file.
//
//	hostsctl [-c config] [-file path] [-lock path] [-raw] [-v] list|add <domain>|remove <domain>
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/allowlist"
	"github.com/edgecomet/siteguard/internal/audit"
	"github.com/edgecomet/siteguard/internal/common/config"
	"github.com/edgecomet/siteguard/internal/domainx"
	"github.com/edgecomet/siteguard/internal/hostsfile"
)

const usage = "Usage: hostsctl [flags] list|add <domain>|remove <domain>"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hostsctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("c", "", "path to siteguard configuration file")
	filePath := fs.String("file", "", "hosts file to edit (overrides config)")
	lockPath := fs.String("lock", "", "lock file shared with the service (overrides config)")
	raw := fs.Bool("raw", false, "list raw entry lines instead of domains")
	verbose := fs.Bool("v", false, "log to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage)
		return 1
	}

	lg := zap.NewNop()
	if *verbose {
		dev, err := zap.NewDevelopment()
		if err == nil {
			lg = dev
		}
	}
	defer func() { _ = lg.Sync() }()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath, lg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if *filePath != "" {
		cfg.Hosts.Path = *filePath
	}
	if *lockPath != "" {
		cfg.Hosts.LockFile = *lockPath
	}

	store := hostsfile.NewLockedStore(
		hostsfile.NewStore(cfg.Hosts.Path, &hostsfile.OSPersister{Atomic: cfg.Hosts.IsAtomicWrite()}, lg),
		cfg.Hosts.LockFile,
		lg,
	)

	protected, err := allowlist.Compile(cfg.Hosts.Protected)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	emitter, err := audit.New(cfg.Audit, lg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer emitter.Close()

	ctx := context.Background()

	switch cmd := rest[0]; cmd {
	case "list":
		var lines []string
		if *raw {
			lines, err = store.Entries(ctx)
		} else {
			lines, err = store.List(ctx)
		}
		if err != nil {
			return fail(stderr, err)
		}
		for _, l := range lines {
			fmt.Fprintln(stdout, l)
		}
		return 0

	case "add", "remove":
		if len(rest) < 2 {
			fmt.Fprintln(stderr, usage)
			return 1
		}
		domain, err := domainx.Normalize(rest[1])
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid domain %q: %v\n", rest[1], err)
			return 1
		}

		if cmd == "add" {
			if pattern, ok := protected.Match(domain); ok {
				emitter.Emit(changeEvent(audit.ActionBlock, domain, audit.ResultRefused))
				fmt.Fprintf(stderr, "Error: %s is protected (%s)\n", domain, pattern)
				return 1
			}
			added, err := store.Add(ctx, domain)
			emitter.Emit(changeEvent(audit.ActionBlock, domain, addResult(added, err)))
			if err != nil {
				return fail(stderr, err)
			}
			fmt.Fprintln(stdout, "Blocked", domain)
			return 0
		}

		removed, err := store.Remove(ctx, domain)
		emitter.Emit(changeEvent(audit.ActionUnblock, domain, removeResult(removed, err)))
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, "Removed", domain)
		return 0

	default:
		fmt.Fprintf(stderr, "Unknown command %q\n%s\n", cmd, usage)
		return 1
	}
}

func changeEvent(action, domain, result string) *audit.Event {
	return &audit.Event{
		Time:      time.Now(),
		Action:    action,
		Domain:    domain,
		Result:    result,
		RequestID: "hostsctl",
	}
}

func addResult(added bool, err error) string {
	switch {
	case err != nil:
		return audit.ResultError
	case added:
		return audit.ResultAdded
	default:
		return audit.ResultExists
	}
}

func removeResult(removed bool, err error) string {
	switch {
	case err != nil:
		return audit.ResultError
	case removed:
		return audit.ResultRemoved
	default:
		return audit.ResultAbsent
	}
}

// fail prints err and returns the exit status: 3 for a malformed block,
// 4 for an unreadable or unwritable file, 1 otherwise.
func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	switch {
	case hostsfile.IsFormatError(err):
		return 3
	case hostsfile.IsIOError(err):
		return 4
	default:
		return 1
	}
}
