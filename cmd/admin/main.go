package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"broadcast-console/internal/backend"
	"broadcast-console/internal/config"
	"broadcast-console/internal/database"
	"broadcast-console/internal/logging"
	"broadcast-console/internal/notify"
	"broadcast-console/pkg/models"
)

const usage = `usage: admin <command> [flags]

commands:
  login -password <pw>
  logout
  upload <file.csv>
  template [-o contacts_template.csv]
  messages list
  messages create -title <t> -content <c>
  messages update -id <n> -title <t> -content <c>
  messages delete -id <n>
  stats`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.LoadConfig()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	database.InitGorm(cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notifier, err := notify.NewNotifier(cfg.Locale, nil, log)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	client := backend.NewClient(cfg, database.NewSettingsStore(database.GormDB), log)
	client.OnUnauthorized = func() {
		fmt.Fprintln(os.Stderr, notifier.Text(notify.SessionExpired, nil))
	}

	a := &adminCLI{client: client, notifier: notifier}
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		if detail := backend.Detail(err); detail != "" {
			fmt.Fprintln(os.Stderr, "error:", detail)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

type adminCLI struct {
	client   *backend.Client
	notifier *notify.Notifier
}

func (a *adminCLI) say(id string, data map[string]any) {
	fmt.Println(a.notifier.Text(id, data))
}

func (a *adminCLI) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		password := fs.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if _, err := a.client.Login(ctx, *password); err != nil {
			a.say(notify.LoginFailed, nil)
			return err
		}
		a.say(notify.LoginSucceeded, nil)
	case "logout":
		if err := a.client.Logout(ctx); err != nil {
			return err
		}
		a.say(notify.LoggedOut, nil)
	case "upload":
		if len(args) == 0 {
			a.say(notify.SelectFileFirst, nil)
			return flag.ErrHelp
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		res, err := a.client.UploadContacts(ctx, filepath.Base(args[0]), f)
		if err != nil {
			a.say(notify.UploadFailed, nil)
			return err
		}
		a.say(notify.UploadSucceeded, map[string]any{"Added": res.Added, "Updated": res.Updated})
	case "template":
		fs := flag.NewFlagSet("template", flag.ContinueOnError)
		out := fs.String("o", "contacts_template.csv", "output file")
		if err := fs.Parse(args); err != nil {
			return err
		}
		data, err := a.client.DownloadTemplate(ctx)
		if err != nil {
			a.say(notify.TemplateDownloadFailed, nil)
			return err
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return err
		}
		a.say(notify.TemplateDownloaded, nil)
	case "messages":
		return a.messages(ctx, args)
	case "stats":
		stats, err := a.client.AdminStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return flag.ErrHelp
	}
	return nil
}

func (a *adminCLI) messages(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return flag.ErrHelp
	}
	fs := flag.NewFlagSet("messages "+args[0], flag.ContinueOnError)
	id := fs.Int("id", 0, "message id")
	title := fs.String("title", "", "message title")
	content := fs.String("content", "", "message content")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	in := models.MessageTemplateInput{Title: *title, Content: *content}

	switch args[0] {
	case "list":
		templates, err := a.client.ListMessages(ctx)
		if err != nil {
			return err
		}
		return printJSON(templates)
	case "create", "update":
		if in.Title == "" || in.Content == "" {
			a.say(notify.FillAllFields, nil)
			return flag.ErrHelp
		}
		var (
			t   models.MessageTemplate
			err error
		)
		if args[0] == "create" {
			t, err = a.client.CreateMessage(ctx, in)
		} else {
			t, err = a.client.UpdateMessage(ctx, *id, in)
		}
		if err != nil {
			a.say(notify.MessageSaveFailed, nil)
			return err
		}
		if args[0] == "create" {
			a.say(notify.MessageCreated, nil)
		} else {
			a.say(notify.MessageUpdated, nil)
		}
		return printJSON(t)
	case "delete":
		if *id == 0 {
			return errors.New("messages delete needs -id")
		}
		if err := a.client.DeleteMessage(ctx, *id); err != nil {
			a.say(notify.MessageDeleteFailed, nil)
			return err
		}
		a.say(notify.MessageDeleted, nil)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return flag.ErrHelp
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
