package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"microblog-client/internal/console"
	"microblog-client/internal/controller"
)

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// credential returns value, prompting for it when empty.
func (a *app) credential(value string) (string, error) {
	if value != "" {
		return value, nil
	}
	password, err := a.promptPassword()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		fmt.Fprintln(a.stdout, "Usage: microblog login -user <username> [-password <password>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	password, err := a.credential(*passwordFlag)
	if err != nil {
		return err
	}

	ctrl, db, err := a.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()
	return ctrl.Login(ctx, *username, password)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := a.flagSet("register")
	username := fs.String("user", "", "Username")
	email := fs.String("email", "", "Email address")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		fmt.Fprintln(a.stdout, "Usage: microblog register -user <username> -email <email> [-password <password>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user, email")
	}

	password, err := a.credential(*passwordFlag)
	if err != nil {
		return err
	}

	ctrl, db, err := a.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()
	return ctrl.Register(ctx, *username, *email, password)
}

func (a *app) logout(args []string) error {
	if err := a.flagSet("logout").Parse(args); err != nil {
		return err
	}
	ctrl, db, err := a.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()
	return ctrl.Logout()
}

func (a *app) whoami(ctx context.Context, args []string) error {
	if err := a.flagSet("whoami").Parse(args); err != nil {
		return err
	}
	ctrl, db, err := a.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	if ctrl.View().Authenticated() {
		// A rejected token logs out silently; the outcome is reported below.
		_ = ctrl.FetchProfile(ctx)
	}
	view := ctrl.View()
	if !view.Authenticated() {
		fmt.Fprintln(a.stdout, "Not logged in")
		return nil
	}
	fmt.Fprintf(a.stdout, "Logged in as %s\n", view.Username())
	return nil
}

func (a *app) feed(ctx context.Context, args []string) error {
	if err := a.flagSet("feed").Parse(args); err != nil {
		return err
	}
	ctrl, db, err := a.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()
	return requireLogin(ctrl.LoadFeed(ctx))
}

func (a *app) post(ctx context.Context, args []string) error {
	fs := a.flagSet("post")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctrl, db, err := a.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()
	return requireLogin(ctrl.CreatePost(ctx, strings.Join(fs.Args(), " ")))
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := a.flagSet("edit")
	id := fs.Int64("id", 0, "Post id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("missing required flags: id")
	}
	ctrl, db, err := a.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()
	return requireLogin(ctrl.EditPost(ctx, *id, strings.Join(fs.Args(), " ")))
}

func (a *app) delete(ctx context.Context, args []string) error {
	fs := a.flagSet("delete")
	id := fs.Int64("id", 0, "Post id")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("missing required flags: id")
	}

	confirm := a.askYesNo
	if *yes {
		confirm = func(string) bool { return true }
	}
	ctrl, db, err := a.open(confirm)
	if err != nil {
		return err
	}
	defer db.Close()

	err = ctrl.DeletePost(ctx, *id)
	if errors.Is(err, controller.ErrNotConfirmed) {
		fmt.Fprintln(a.stdout, "Cancelled.")
		return nil
	}
	return requireLogin(err)
}

func (a *app) react(ctx context.Context, action string, args []string) error {
	fs := a.flagSet(action)
	id := fs.Int64("id", 0, "Post id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("missing required flags: id")
	}
	ctrl, db, err := a.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	switch action {
	case "like":
		err = ctrl.ToggleLike(ctx, *id)
	case "unlike":
		err = ctrl.Unlike(ctx, *id)
	case "retweet":
		err = ctrl.ToggleRetweet(ctx, *id)
	default:
		err = ctrl.Unretweet(ctx, *id)
	}
	return requireLogin(err)
}

func (a *app) shell(ctx context.Context, args []string) error {
	if err := a.flagSet("shell").Parse(args); err != nil {
		return err
	}

	printer := console.NewPrinter(a.stdout, nil)
	ctrl, db, err := a.openSession(printer)
	if err != nil {
		return err
	}
	defer db.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(filepath.Dir(a.dbPath), "history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          a.stdout,
		Stderr:          a.stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	sh := console.NewShell(ctrl, rl, a.stdout)
	printer.SetConfirm(sh.Confirm)

	// Errors are logged by the controller; the shell starts either way.
	// The printer shows the feed if Start loaded one.
	_ = ctrl.Start(ctx)
	if view := ctrl.View(); view.Authenticated() {
		fmt.Fprintf(a.stdout, "Logged in as %s\n", view.Username())
	} else {
		fmt.Fprintln(a.stdout, "Not logged in. Type 'login <username>' or 'help'.")
	}
	return sh.Loop(ctx)
}
