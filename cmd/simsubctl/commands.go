package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nkkko/simsub/internal/subscription"
	"github.com/nkkko/simsub/pkg/client"
	"github.com/nkkko/simsub/pkg/proto"
)

type command struct {
	remote *client.Client
	config subscription.Config
	out    io.Writer
}

type handler struct {
	usage string
	args  int
	watch bool
	run   func(c *command, ctx context.Context, sc *subscription.Client, args []string) error
}

var handlers = map[string]handler{
	"list": {
		usage: "list                      active subscriptions",
		run: func(c *command, ctx context.Context, sc *subscription.Client, _ []string) error {
			return c.print(sc.ActiveSubscriptionInfoList(ctx))
		},
	},
	"all": {
		usage: "all                       every known subscription",
		run: func(c *command, ctx context.Context, sc *subscription.Client, _ []string) error {
			return c.print(sc.AllSubscriptionInfoList(ctx))
		},
	},
	"get": {
		usage: "get <id>                  one active subscription",
		args:  1,
		run: func(c *command, ctx context.Context, sc *subscription.Client, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			info := sc.ActiveSubscriptionInfo(ctx, id)
			if info == nil {
				return fmt.Errorf("subscription %d is not active", id)
			}
			return c.print(info)
		},
	},
	"defaults": {
		usage: "defaults                  default and preferred subscription ids",
		run: func(c *command, ctx context.Context, sc *subscription.Client, _ []string) error {
			return c.print(map[string]int32{
				"default":   sc.DefaultSubscriptionID(ctx),
				"voice":     sc.DefaultVoiceSubscriptionID(ctx),
				"data":      sc.DefaultDataSubscriptionID(ctx),
				"sms":       sc.DefaultSMSSubscriptionID(ctx),
				"preferred": sc.PreferredDataSubscriptionID(ctx),
			})
		},
	},
	"set-default": {
		usage: "set-default <voice|data|sms> <id>",
		args:  2,
		run: func(c *command, ctx context.Context, sc *subscription.Client, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			switch args[0] {
			case "voice":
				sc.SetDefaultVoiceSubscriptionID(ctx, id)
			case "data":
				sc.SetDefaultDataSubscriptionID(ctx, id)
			case "sms":
				return sc.SetDefaultSMSSubscriptionID(ctx, id)
			default:
				return fmt.Errorf("unknown default %q", args[0])
			}
			return nil
		},
	},
	"add": {
		usage: "add <icc-id> <name> <slot>  insert a local SIM record",
		args:  3,
		run: func(c *command, ctx context.Context, sc *subscription.Client, args []string) error {
			slot, err := parseID(args[2])
			if err != nil {
				return err
			}
			sc.AddSubscriptionInfoRecord(ctx, args[0], args[1], slot, proto.SubscriptionType_LOCAL_SIM)
			return nil
		},
	},
	"remove": {
		usage: "remove <icc-id>           remove a local SIM record",
		args:  1,
		run: func(c *command, ctx context.Context, sc *subscription.Client, args []string) error {
			sc.RemoveSubscriptionInfoRecord(ctx, args[0], proto.SubscriptionType_LOCAL_SIM)
			return nil
		},
	},
	"group": {
		usage: "group <id> <id>...        put subscriptions in a new group",
		args:  1,
		run: func(c *command, ctx context.Context, sc *subscription.Client, args []string) error {
			ids := make([]int32, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			uuid, err := sc.SetSubscriptionGroup(ctx, ids)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, uuid)
			return err
		},
	},
	"plans": {
		usage: "plans <id>                billing plans of a subscription",
		args:  1,
		run: func(c *command, ctx context.Context, sc *subscription.Client, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			plans, err := sc.SubscriptionPlans(ctx, id)
			if err != nil {
				return err
			}
			return c.print(plans)
		},
	},
	"watch": {
		usage: "watch                     print a line on every change",
		watch: true,
		run: func(c *command, ctx context.Context, sc *subscription.Client, _ []string) error {
			listener := sc.AddOnSubscriptionsChangedListener(ctx, func() {
				fmt.Fprintf(c.out, "changed: %d active\n", sc.ActiveSubscriptionInfoCount(ctx))
			})
			defer sc.RemoveOnSubscriptionsChangedListener(context.WithoutCancel(ctx), listener)

			<-ctx.Done()
			return nil
		},
	},
}

func (c *command) execute(ctx context.Context, name string, args []string) error {
	h, ok := handlers[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	if len(args) < h.args {
		return fmt.Errorf("usage: simsubctl %s", h.usage)
	}

	sc, closeFn, err := c.connect(ctx, h.watch)
	if err != nil {
		return err
	}
	defer closeFn()

	return h.run(c, ctx, sc, args)
}

func (c *command) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int32, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return int32(id), nil
}

func commandHelp() string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "  %s\n", handlers[name].usage)
	}
	return b.String()
}
