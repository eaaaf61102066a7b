package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"microblog-client/internal/api"
	"microblog-client/internal/console"
	"microblog-client/internal/controller"
	"microblog-client/internal/session"
	"microblog-client/internal/storage"

	"golang.org/x/term"
)

const defaultAPI = "http://localhost:8000"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the global configuration and I/O of one invocation.
type app struct {
	apiURL string
	dbPath string
	stdin  *bufio.Reader
	rawIn  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *log.Logger
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("microblog", flag.ContinueOnError)
	fs.SetOutput(stderr)

	apiURL := fs.String("api", envOr("MICROBLOG_API", defaultAPI), "Base URL of the microblog API")
	dbPath := fs.String("db", envOr("MICROBLOG_DB", defaultDBPath()), "Path to the session database")
	fs.Usage = func() { printUsage(stdout, fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		printUsage(stdout, fs)
		return fmt.Errorf("missing command")
	}

	a := &app{
		apiURL: *apiURL,
		dbPath: *dbPath,
		stdin:  bufio.NewReader(stdin),
		rawIn:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: log.New(stderr, "", log.LstdFlags),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "login":
		return a.login(ctx, rest)
	case "register":
		return a.register(ctx, rest)
	case "logout":
		return a.logout(rest)
	case "whoami":
		return a.whoami(ctx, rest)
	case "feed":
		return a.feed(ctx, rest)
	case "post":
		return a.post(ctx, rest)
	case "edit":
		return a.edit(ctx, rest)
	case "delete":
		return a.delete(ctx, rest)
	case "like", "unlike", "retweet", "unretweet":
		return a.react(ctx, command, rest)
	case "shell":
		return a.shell(ctx, rest)
	case "serve":
		return a.serve(ctx, rest)
	default:
		printUsage(stdout, fs)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: microblog [-api <url>] [-db <db_path>] <command> [flags]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  login -user <username> [-password <password>]")
	fmt.Fprintln(w, "  register -user <username> -email <email> [-password <password>]")
	fmt.Fprintln(w, "  logout | whoami | feed")
	fmt.Fprintln(w, "  post <content>")
	fmt.Fprintln(w, "  edit -id <post id> <content>")
	fmt.Fprintln(w, "  delete -id <post id> [-yes]")
	fmt.Fprintln(w, "  like | unlike | retweet | unretweet -id <post id>")
	fmt.Fprintln(w, "  shell")
	fmt.Fprintln(w, "  serve [-addr <addr>] [-templates <dir>] [-static <dir>]")
	fmt.Fprintln(w, "\nGlobal flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "session.db"
	}
	return filepath.Join(dir, "microblog", "session.db")
}

// openSession opens the session database and returns a controller driving ui.
// The persisted token is restored; it is validated only by commands that ask
// for the profile. The caller must close the returned DB.
func (a *app) openSession(ui controller.UI) (*controller.Controller, *storage.DB, error) {
	db, err := storage.NewDB(a.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := session.NewStore(db)
	if err := store.Restore(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to restore session: %w", err)
	}
	ctrl := controller.New(api.NewClient(a.apiURL, nil), store, ui, a.logger)
	return ctrl, db, nil
}

// open returns a controller printing to stdout. The printer starts from the
// restored session so that only changes made by the command are printed.
func (a *app) open(confirm console.ConfirmFunc) (*controller.Controller, *storage.DB, error) {
	p := console.NewPrinter(a.stdout, confirm)
	ctrl, db, err := a.openSession(p)
	if err != nil {
		return nil, nil, err
	}
	p.Render(ctrl.View())
	return ctrl, db, nil
}

// askYesNo prompts on stdout and reads the answer from stdin.
func (a *app) askYesNo(prompt string) bool {
	fmt.Fprintf(a.stdout, "%s [y/N] ", prompt)
	line, err := a.stdin.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (a *app) promptPassword() (string, error) {
	fmt.Fprint(a.stdout, "Password: ")
	password, err := readPassword(a.rawIn, a.stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(a.stdout) // Print newline after password input
	return password, nil
}

func readPassword(raw io.Reader, buffered *bufio.Reader) (string, error) {
	// Check if stdin is a terminal
	if f, ok := raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	line, err := buffered.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// requireLogin turns ErrNotAuthenticated into a hint for the user.
func requireLogin(err error) error {
	if errors.Is(err, controller.ErrNotAuthenticated) {
		return fmt.Errorf("%w: run 'microblog login' first", err)
	}
	return err
}
