package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"microblog-client/internal/controller"
)

// ErrExit is returned by ExecuteCommand when the user asks to leave the shell.
var ErrExit = errors.New("exit requested")

// Shell is an interactive command loop driving a Controller.
type Shell struct {
	Ctrl *controller.Controller
	RL   *readline.Instance
	Out  io.Writer

	// ReadPassword prompts for a password without echo.
	ReadPassword func(prompt string) ([]byte, error)
	// Confirm asks a yes/no question.
	Confirm ConfirmFunc
}

// NewShell creates a Shell reading from rl.
func NewShell(ctrl *controller.Controller, rl *readline.Instance, out io.Writer) *Shell {
	s := &Shell{Ctrl: ctrl, RL: rl, Out: out}
	if rl != nil {
		s.ReadPassword = rl.ReadPassword
		s.Confirm = s.readlineConfirm
	}
	return s
}

func (s *Shell) readlineConfirm(prompt string) bool {
	defer s.UpdatePrompt()
	s.RL.SetPrompt(prompt + " [y/N] ")
	line, err := s.RL.Readline()
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// UpdatePrompt shows the logged-in user in the prompt.
func (s *Shell) UpdatePrompt() {
	if s.RL == nil {
		return
	}
	view := s.Ctrl.View()
	if view.Authenticated() {
		s.RL.SetPrompt(view.Username() + "> ")
		return
	}
	s.RL.SetPrompt("> ")
}

// Loop reads and executes commands until exit, EOF or ctx is done.
func (s *Shell) Loop(ctx context.Context) error {
	s.UpdatePrompt()
	for ctx.Err() == nil {
		err := s.Run(ctx)
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			fmt.Fprintln(s.Out, "Use 'exit' or 'quit' to exit the program.")
		case errors.Is(err, io.EOF), errors.Is(err, ErrExit):
			return nil
		case err != nil:
			fmt.Fprintln(s.Out, "Error:", err)
		}
		s.UpdatePrompt()
	}
	return ctx.Err()
}

// Run reads and executes a single line.
func (s *Shell) Run(ctx context.Context) error {
	line, err := s.RL.Readline()
	if err != nil {
		return err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	return s.ExecuteCommand(ctx, ParseArgs(line))
}

// ParseArgs splits input on spaces, keeping double-quoted runs together.
func ParseArgs(input string) []string {
	var args []string
	var currentArg strings.Builder
	inQuotes := false

	for _, char := range input {
		switch char {
		case '"':
			inQuotes = !inQuotes
		case ' ', '\t':
			if !inQuotes {
				if currentArg.Len() > 0 {
					args = append(args, currentArg.String())
					currentArg.Reset()
				}
			} else {
				currentArg.WriteRune(char)
			}
		default:
			currentArg.WriteRune(char)
		}
	}

	if currentArg.Len() > 0 {
		args = append(args, currentArg.String())
	}

	return args
}

// ExecuteCommand runs one parsed command. Errors the controller already
// reported to the user are not returned again; only usage errors are.
func (s *Shell) ExecuteCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command provided")
	}

	switch args[0] {
	case "login":
		return s.handleLogin(ctx, args[1:])
	case "register":
		return s.handleRegister(ctx, args[1:])
	case "logout":
		_ = s.Ctrl.Logout()
		return nil
	case "whoami":
		return s.handleWhoami()
	case "feed":
		_ = s.Ctrl.LoadFeed(ctx)
		return nil
	case "post":
		if len(args) < 2 {
			return usage("post")
		}
		_ = s.Ctrl.CreatePost(ctx, strings.Join(args[1:], " "))
		return nil
	case "edit":
		if len(args) < 3 {
			return usage("edit")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		_ = s.Ctrl.EditPost(ctx, id, strings.Join(args[2:], " "))
		return nil
	case "delete":
		return s.withID(args, func(id int64) error {
			if err := s.Ctrl.DeletePost(ctx, id); errors.Is(err, controller.ErrNotConfirmed) {
				fmt.Fprintln(s.Out, "Cancelled.")
			}
			return nil
		})
	case "like":
		return s.withID(args, func(id int64) error { _ = s.Ctrl.ToggleLike(ctx, id); return nil })
	case "unlike":
		return s.withID(args, func(id int64) error { _ = s.Ctrl.Unlike(ctx, id); return nil })
	case "retweet":
		return s.withID(args, func(id int64) error { _ = s.Ctrl.ToggleRetweet(ctx, id); return nil })
	case "unretweet":
		return s.withID(args, func(id int64) error { _ = s.Ctrl.Unretweet(ctx, id); return nil })
	case "help":
		s.printHelp(strings.Join(args[1:], " "))
		return nil
	case "exit", "quit":
		fmt.Fprintln(s.Out, "Exiting...")
		return ErrExit
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (s *Shell) withID(args []string, fn func(id int64) error) error {
	if len(args) != 2 {
		return usage(args[0])
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	return fn(id)
}

func (s *Shell) handleLogin(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("login")
	}
	password, err := s.passwordArg(args, 1)
	if err != nil {
		return err
	}
	_ = s.Ctrl.Login(ctx, args[0], password)
	return nil
}

func (s *Shell) handleRegister(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usage("register")
	}
	password, err := s.passwordArg(args, 2)
	if err != nil {
		return err
	}
	_ = s.Ctrl.Register(ctx, args[0], args[1], password)
	return nil
}

// passwordArg returns args[i], prompting for it when absent.
func (s *Shell) passwordArg(args []string, i int) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	if s.ReadPassword == nil {
		return "", fmt.Errorf("password required")
	}
	pw, err := s.ReadPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func (s *Shell) handleWhoami() error {
	view := s.Ctrl.View()
	if !view.Authenticated() {
		fmt.Fprintln(s.Out, "Not logged in")
		return nil
	}
	fmt.Fprintf(s.Out, "Logged in as %s\n", view.Username())
	return nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid post id: %s", arg)
	}
	return id, nil
}

func usage(command string) error {
	return fmt.Errorf("usage: %s", strings.SplitN(commandHelp[command], "\n", 2)[0])
}

func (s *Shell) printHelp(command string) {
	if command == "" {
		names := make([]string, 0, len(commandHelp))
		for name := range commandHelp {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(s.Out, "Available commands:")
		for _, name := range names {
			fmt.Fprintf(s.Out, "  %s\n", name)
		}
		fmt.Fprintln(s.Out, "\nUse 'help <command>' for more information about a specific command.")
	} else if help, ok := commandHelp[command]; ok {
		fmt.Fprintln(s.Out, help)
	} else {
		fmt.Fprintf(s.Out, "Unknown command: %s\n", command)
	}
}

// commandHelp contains help text for each command. The first line is the syntax.
var commandHelp = map[string]string{
	"login": `login <username> [password]
Logs in and loads the feed. Prompts for the password when it is omitted.`,

	"register": `register <username> <email> [password]
Creates an account and logs in with it.`,

	"logout": `logout
Forgets the local session. The token is not revoked on the server.`,

	"whoami": `whoami
Shows who is logged in.`,

	"feed": `feed
Reloads and prints the feed, newest first.`,

	"post": `post <content>
Publishes a post. Use quotes to keep spacing.
Example: post "Hello, world"`,

	"edit": `edit <post id> <content>
Replaces the content of one of your posts. Only possible shortly after posting.`,

	"delete": `delete <post id>
Deletes one of your posts after confirmation.`,

	"like": `like <post id>
Likes a post.`,

	"unlike": `unlike <post id>
Removes your like from a post.`,

	"retweet": `retweet <post id>
Retweets a post.`,

	"unretweet": `unretweet <post id>
Removes your retweet from a post.`,

	"quit": `quit
Exits the shell.`,

	"exit": `exit
Exits the shell.`,
}
