package app

import (
	"context"
	"log/slog"

	"github.com/m3rciful/paybot/core/buildinfo"
	"github.com/m3rciful/paybot/core/logger"
	tg "github.com/m3rciful/paybot/core/telegram"
	"github.com/m3rciful/paybot/core/telegram/callbacks"
	"github.com/m3rciful/paybot/core/telegram/commands"
	"github.com/m3rciful/paybot/core/telegram/helpers"
	"github.com/m3rciful/paybot/core/telegram/router"
	"github.com/m3rciful/paybot/core/telegram/ui"
	"github.com/m3rciful/paybot/flow"

	tele "gopkg.in/telebot.v4"
)

const helpText = "Payout Bot commands:\n\n" +
	"/start - open the main menu (or log in)\n" +
	"/help - show this message\n\n" +
	"Everything else happens through the buttons."

// TelegramRunOptions assembles the bot runtime: commands, callbacks, routers,
// middleware chain, and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.registerCommands(reg)
	if err := a.registerCallbacks(reg); err != nil {
		return tg.RunOptions{}, err
	}

	var fb ui.FallbackProvider = fallbacks{}
	reg.SetCallbackNotFound(fb.UnknownCallback())

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes,
		router.TextRoute(&fsmAdapter{app: a}, reg, router.TextOptions{
			UnknownText: fb.UnknownText(),
		}),
		router.CallbackRoute(reg, router.CallbackOptions{}),
	)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	a.mu.Lock()
	a.rt = rt
	a.rtReady = true
	a.runCtx = ctx
	a.mu.Unlock()

	logger.Info(ctx, "app", "start",
		slog.String("version", buildinfo.Version),
		slog.Bool("notifications", a.svc.Subscriber.Enabled()))
	return nil
}

func (a *App) onStop(ctx context.Context, _ tg.Runtime) error {
	a.svc.Subscriber.Close()
	a.svc.Store.Close()
	logger.Info(ctx, "app", "stop")
	return nil
}

func (a *App) registerCommands(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Description: "Open the main menu",
		Handler: func(c tele.Context) error {
			ctx := helpers.BuildContext(c)
			return a.svc.Engine.Start(ctx, newResponder(c), c.Sender().ID)
		},
	})
	reg.RegisterCommand("/help", commands.Command{
		Description: "How to use the bot",
		Handler: func(c tele.Context) error {
			return helpers.SendText(c, helpText)
		},
	})
	reg.RegisterCommand("/version", commands.Command{
		Description: "Show build information",
		Hidden:      true,
		AdminOnly:   true,
		Handler: func(c tele.Context) error {
			text := "paybot " + buildinfo.Version + " (" + buildinfo.Commit + ")"
			if buildinfo.Date != "" {
				text += " built " + buildinfo.Date
			}
			return helpers.SendText(c, text)
		},
	})
}

func (a *App) registerCallbacks(reg *tg.Registry) error {
	for _, action := range flow.Actions() {
		action := action
		err := reg.RegisterCallback(action, func(c tele.Context) error {
			ctx := helpers.BuildContext(c)
			payload := callbacks.CallbackPayload(c)
			return a.svc.Engine.HandleAction(ctx, newResponder(c), c.Sender().ID, action, payload)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// fsmAdapter bridges the conversation engine into the text router.
type fsmAdapter struct {
	app *App
}

func (f *fsmAdapter) InProgress(userID int64) bool {
	return f.app.svc.Engine.ExpectsText(userID)
}

func (f *fsmAdapter) ManagerHandler(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	return f.app.svc.Engine.HandleText(ctx, newResponder(c), c.Sender().ID, c.Text())
}

// fallbacks provides handlers for updates nothing else claimed.
type fallbacks struct{}

func (fallbacks) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return helpers.SendText(c, "I didn't catch that. Send /start to open the menu.")
	}
}

func (fallbacks) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "This button is no longer active."})
	}
}

// deliverDeposit pushes a deposit alert to the user, honoring the per-user
// notification toggle.
func (a *App) deliverDeposit(userID int64, text string) {
	sess, ok := a.svc.Store.Get(userID)
	if !ok || !sess.NotifyEnabled {
		return
	}

	a.mu.RLock()
	rt := a.rt
	ready := a.rtReady
	a.mu.RUnlock()
	if !ready {
		return
	}

	ctx := a.baseContext()
	send := func() error {
		_, err := rt.Bot.Send(&tele.User{ID: userID}, text)
		return err
	}
	if err := rt.Dispatcher.Enqueue(ctx, "notify.deposit", "sendMessage", send); err != nil {
		if err := send(); err != nil {
			logger.Warn(ctx, "notify", "deposit.send.fail",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()))
		}
	}
}
