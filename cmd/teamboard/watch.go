package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/client"
	"github.com/mschirtzinger/teamboard/internal/events"
	"github.com/mschirtzinger/teamboard/internal/realtime"
	"github.com/mschirtzinger/teamboard/internal/schema"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "remote",
	Short:   "Stream live mutations",
	Long: `Follow the realtime channel of a running server and print every
mutation as it arrives. A local mirror of the collections is kept current
and resynced on hello and reload envelopes.

With --redis the envelopes are read from the Redis relay instead of the
websocket, which works for any number of servers sharing redis.instance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		w := &watcher{client: c, mirror: realtime.NewMirror(), out: cmd.OutOrStdout()}

		if useRedis, _ := cmd.Flags().GetBool("redis"); useRedis {
			return w.followRedis(ctx)
		}
		return w.followWebSocket(ctx)
	},
}

type watcher struct {
	client *client.Client
	mirror *realtime.Mirror
	out    io.Writer
}

var (
	createColor = color.New(color.FgGreen, color.Bold)
	updateColor = color.New(color.FgYellow)
	deleteColor = color.New(color.FgRed, color.Bold)
	infoColor   = color.New(color.FgCyan)
	timeColor   = color.New(color.Faint)
)

func (w *watcher) followWebSocket(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, w.client.WebSocketURL(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", w.client.WebSocketURL(), err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(32 << 20)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("realtime connection lost: %w", err)
		}
		w.handle(ctx, data)
	}
}

func (w *watcher) followRedis(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	sub, err := realtime.Subscribe(ctx, rdb, cfg.Redis.Instance, events.TopicMutations, events.TopicReload)
	if err != nil {
		return err
	}
	defer sub.Close()

	// The relay sends no hello, so load everything up front.
	w.resync(ctx, schema.BusinessKinds...)
	fmt.Fprintln(w.out, infoColor.Sprintf("following redis %s (instance %s)", cfg.Redis.Addr, cfg.Redis.Instance))

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-sub.Messages():
			if !ok {
				return errors.New("redis subscription closed")
			}
			w.handle(ctx, data)
		}
	}
}

func (w *watcher) handle(ctx context.Context, data []byte) {
	topic, ev, err := w.mirror.HandleMessage(data)
	if err != nil {
		fmt.Fprintln(w.out, deleteColor.Sprint("bad envelope: "), err)
		return
	}
	switch topic {
	case events.TopicHello:
		var hello events.Hello
		if json.Unmarshal(data, &hello) == nil {
			fmt.Fprintln(w.out, infoColor.Sprintf("connected (%d clients)", hello.Clients))
		}
		w.resync(ctx, schema.BusinessKinds...)
	case events.TopicReload:
		var reload events.Reload
		if json.Unmarshal(data, &reload) == nil && reload.EntityType.Valid() {
			fmt.Fprintln(w.out, infoColor.Sprintf("%s reloaded from disk", reload.EntityType.Plural()))
			if reload.EntityType != schema.KindAuditLog {
				w.resync(ctx, reload.EntityType)
			}
		}
	case events.TopicMutations:
		w.print(*ev)
	}
}

func (w *watcher) resync(ctx context.Context, kinds ...schema.Kind) {
	for _, kind := range kinds {
		items, err := w.client.List(ctx, kind, nil)
		if err != nil {
			fmt.Fprintln(w.out, deleteColor.Sprintf("resync %s failed: %v", kind.Plural(), err))
			continue
		}
		w.mirror.Load(kind, items)
	}
}

func (w *watcher) print(ev events.Event) {
	var action string
	switch ev.Action {
	case schema.ActionCreate:
		action = createColor.Sprint("+ create")
	case schema.ActionDelete:
		action = deleteColor.Sprint("- delete")
	default:
		action = updateColor.Sprint("~ update")
	}

	target := ev.EntityID
	if ev.IsReplace() {
		target = fmt.Sprintf("all (%d)", len(ev.Items))
	} else if e, ok := w.mirror.Get(ev.EntityType, ev.EntityID); ok {
		target = describe(e)
	} else if ev.Before != nil {
		target = describe(ev.Before)
	}

	fmt.Fprintf(w.out, "%s %s %-11s %s %s\n",
		timeColor.Sprint(ev.Timestamp.Local().Format(time.TimeOnly)),
		action,
		ev.EntityType,
		target,
		timeColor.Sprint("by "+ev.UserID),
	)
}

func describe(e schema.Entity) string {
	switch v := e.(type) {
	case schema.Person:
		return v.Name
	case schema.Project:
		return v.Name
	case schema.Milestone:
		return v.Name
	case schema.Task:
		return v.Name
	case schema.Label:
		return v.Name
	case schema.Assignment:
		return v.TaskID + " → " + v.PersonID + " on " + v.Date
	case schema.Planning:
		return fmt.Sprintf("%s on %s, week of %s", v.PersonID, v.ProjectID, v.WeekStart)
	default:
		return e.EntityID()
	}
}

func init() {
	watchCmd.Flags().Bool("redis", false, "read from the Redis relay (redis.addr) instead of the websocket")
	addRemoteFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
