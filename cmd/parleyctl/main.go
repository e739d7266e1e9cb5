package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/parley/internal/auth"
	"github.com/matheus3301/parley/internal/client"
	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/instance"
	"github.com/matheus3301/parley/internal/lock"
	"github.com/matheus3301/parley/internal/wire"
)

// TokenEnv supplies a bearer token instead of minting one with --as.
const TokenEnv = "PARLEY_TOKEN"

type globals struct {
	instance string
	cfg      *config.Config
	addr     string
	as       string
	jsonOut  bool
}

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	addrFlag := flag.String("addr", "", "daemon address (overrides config listen_addr)")
	asFlag := flag.String("as", "", "identity to act as; mints a token from the local config secret")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fatalf("%v", err)
	}
	cfg, err := config.LoadOrDefault(instance.ConfigPath())
	if err != nil {
		fatalf("load config: %v", err)
	}

	g := &globals{instance: name, cfg: cfg, addr: cfg.ListenAddr, as: *asFlag, jsonOut: *jsonFlag}
	if *addrFlag != "" {
		g.addr = *addrFlag
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "status":
		cmdStatus(ctx, g)
	case "token":
		cmdToken(g, args[1:])
	case "history":
		cmdHistory(ctx, g, args[1:])
	case "presence":
		cmdPresence(ctx, g, args[1:])
	case "chat":
		cmdChat(ctx, g)
	case "watch":
		cmdWatch(ctx, g, args[1:])
	case "seed":
		cmdSeed(ctx, g, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: parleyctl [--instance <name>] [--addr <addr>] [--as <identity>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon status")
	fmt.Fprintln(os.Stderr, "  token <identity> [ttl]          Print a bearer token")
	fmt.Fprintln(os.Stderr, "  history <identity|#room>        Show conversation history (needs --as)")
	fmt.Fprintln(os.Stderr, "  presence [identity]...          Show who is online (needs --as)")
	fmt.Fprintln(os.Stderr, "  chat                            Interactive session (needs --as)")
	fmt.Fprintln(os.Stderr, "  watch [namespace]               Stream daemon events")
	fmt.Fprintln(os.Stderr, "  seed identity <id> [name]       Create or rename an identity")
	fmt.Fprintln(os.Stderr, "  seed room <name> <creator> ...  Create a room with members")
	fmt.Fprintln(os.Stderr, "  seed member <room> <id> [off]   Add, reactivate or deactivate a member")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// token returns the bearer token for authenticated calls, preferring
// $PARLEY_TOKEN over minting one for --as.
func (g *globals) token() string {
	if t := os.Getenv(TokenEnv); t != "" {
		return t
	}
	if g.as == "" {
		fatalf("this command needs --as <identity> or $%s", TokenEnv)
	}
	v, err := auth.NewVerifier(g.cfg.TokenSecret)
	if err != nil {
		fatalf("no token secret in %s; start parleyd once to generate it", instance.ConfigPath())
	}
	t, err := v.Issue(g.as, g.cfg.TokenTTL.Duration)
	if err != nil {
		fatalf("issue token: %v", err)
	}
	return t
}

func (g *globals) dial(token string) *client.Client {
	c, err := client.New(g.addr, token)
	if err != nil {
		fatalf("cannot connect to daemon for instance %q: %v", g.instance, err)
	}
	return c
}

func cmdStatus(ctx context.Context, g *globals) {
	c := g.dial("")
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := c.Gateway.GetStatus(ctx, &wire.StatusRequest{})
	if err != nil {
		if pid := lock.Owner(instance.Dir(g.instance)); pid != 0 {
			fatalf("daemon (pid %d) not answering: %v", pid, err)
		}
		fatalf("daemon not running: %v", err)
	}
	if g.jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Instance:    %s\n", resp.Instance)
	fmt.Printf("Status:      %s\n", resp.Status)
	fmt.Printf("Uptime:      %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).String())
	fmt.Printf("Connections: %d (%d online)\n", resp.Connections, resp.Online)
	fmt.Printf("Identities:  %d\n", resp.Identities)
	fmt.Printf("Messages:    %d\n", resp.Messages)
}

func cmdToken(g *globals, args []string) {
	if len(args) < 1 {
		fatalf("usage: parleyctl token <identity> [ttl]")
	}
	ttl := g.cfg.TokenTTL.Duration
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			fatalf("ttl: %v", err)
		}
		ttl = d
	}
	v, err := auth.NewVerifier(g.cfg.TokenSecret)
	if err != nil {
		fatalf("no token secret in %s; start parleyd once to generate it", instance.ConfigPath())
	}
	t, err := v.Issue(args[0], ttl)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(t)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
