/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/clog/gcp"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/go-github/v75/github"
	"github.com/kelseyhightower/envconfig"

	"github.com/pluginhub-dev/triage-bot/pkg/httpmetrics"
	mce "github.com/pluginhub-dev/triage-bot/pkg/httpmetrics/cloudevents"
)

// Bot receives GitHub events as CloudEvents and dispatches them to typed
// handlers by event type.
type Bot struct {
	Name     string
	Handlers map[EventType]EventHandlerFunc
}

type BotOptions func(*Bot)

func NewBot(name string, opts ...BotOptions) Bot {
	bot := Bot{
		Name:     name,
		Handlers: make(map[EventType]EventHandlerFunc),
	}

	for _, opt := range opts {
		opt(&bot)
	}

	return bot
}

func BotWithHandler(handler EventHandlerFunc) BotOptions {
	return func(b *Bot) {
		b.RegisterHandler(handler)
	}
}

func (b *Bot) RegisterHandler(handler EventHandlerFunc) {
	etype := handler.EventType()
	if _, ok := b.Handlers[etype]; ok {
		panic(fmt.Sprintf("handler for event type %s already registered", etype))
	}
	b.Handlers[etype] = handler
}

// Serve starts the bot's CloudEvents receiver. It blocks until the
// receiver fails.
func Serve(b Bot) error {
	var env struct {
		Port int `envconfig:"PORT" default:"8080" required:"true"`
	}
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("processing env var: %w", err)
	}
	ctx := context.Background()

	slog.SetDefault(slog.New(gcp.NewHandler(slog.LevelInfo)))

	logger := clog.FromContext(ctx)

	go httpmetrics.ServeMetrics()
	defer httpmetrics.SetupTracer(ctx)()
	httpmetrics.SetBuckets(map[string]string{
		"api.github.com":            "github",
		"raw.githubusercontent.com": "github-raw",
		"octo-sts.dev":              "octosts",
	})

	c, err := mce.NewClientHTTP(b.Name,
		cloudevents.WithPort(env.Port),
	)
	if err != nil {
		return fmt.Errorf("creating event client: %w", err)
	}

	logger.Infof("starting bot %s receiver on port %d", b.Name, env.Port)
	return c.StartReceiver(ctx, b.receive)
}

// receive decodes an incoming CloudEvent and dispatches it to the
// handler registered for its type. Events with no registered handler
// are ignored.
func (b Bot) receive(ctx context.Context, event cloudevents.Event) error {
	logger := clog.FromContext(ctx)
	logger.With("event", event).Debugf("received event")

	defer func() {
		if err := recover(); err != nil {
			clog.Errorf("panic: %s", debug.Stack())
		}
	}()

	handler, ok := b.Handlers[EventType(event.Type())]
	if !ok {
		logger.With("event", event).Debugf("ignoring event")
		return nil
	}

	logger.Info("handling event", "type", event.Type())

	switch h := handler.(type) {
	case PullRequestHandler:
		var pre Wrapper[github.PullRequestEvent]
		if err := event.DataAs(&pre); err != nil {
			logger.Errorf("failed to unmarshal pull request event: %v", err)
			return err
		}

		if err := h(ctx, pre.Body); err != nil {
			logger.Errorf("failed to handle pull request event: %v", err)
			return err
		}
		return nil

	case PullRequestReviewHandler:
		var pre Wrapper[github.PullRequestReviewEvent]
		if err := event.DataAs(&pre); err != nil {
			logger.Errorf("failed to unmarshal pull request review event: %v", err)
			return err
		}

		if err := h(ctx, pre.Body); err != nil {
			logger.Errorf("failed to handle pull request review event: %v", err)
			return err
		}
		return nil
	}

	logger.With("event", event).Debugf("ignoring event")
	return nil
}
