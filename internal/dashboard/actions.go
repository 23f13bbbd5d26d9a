package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hostgenius/panel/internal/api"
	"github.com/hostgenius/panel/internal/render"
)

// ServiceModules are the modules listing services; they are dropped from
// the cache after a service changes state.
var ServiceModules = []string{"all-services", "vps-services", "docker-services", "n8n-services"}

// PanelService performs the panel calls behind action triggers.
// Satisfied by *api.Client.
type PanelService interface {
	ManageService(ctx context.Context, id int, action api.ServiceAction) error
	Logout(ctx context.Context) error
}

// HandlerRegistrar accepts action handlers. Satisfied by *render.Dispatcher.
type HandlerRegistrar interface {
	Handle(action string, h render.Handler)
}

var serviceVerbs = map[api.ServiceAction]string{
	api.ServiceStart:   "started",
	api.ServiceStop:    "stopped",
	api.ServiceRestart: "restarted",
}

// RegisterActions installs the dashboard's action handlers on r.
// webBase is the panel's web address, used in notices for actions that
// only the browser can complete.
func RegisterActions(r HandlerRegistrar, svc PanelService, webBase string) {
	webBase = strings.TrimSuffix(webBase, "/")

	r.Handle("logout", func(ctx context.Context, _ render.Trigger) (render.Outcome, error) {
		if err := svc.Logout(ctx); err != nil {
			return render.Outcome{}, err
		}
		return render.Outcome{Notice: "Logged out", Quit: true}, nil
	})

	for _, name := range []string{"start-service", "stop-service", "restart-service"} {
		r.Handle(name, serviceHandler(svc))
	}

	for action, target := range map[string]string{
		"create-vps":    "vps-services",
		"create-docker": "docker-services",
		"create-n8n":    "n8n-services",
		"support":       "user-tickets",
	} {
		r.Handle(action, navigateTo(target))
	}

	r.Handle("topup", notice("Top up your balance at "+webBase+"/billing/topup"))
	r.Handle("create-project", notice("Create projects at "+webBase+"/projects"))
}

func serviceHandler(svc PanelService) render.Handler {
	return func(ctx context.Context, t render.Trigger) (render.Outcome, error) {
		action, err := api.ParseServiceAction(t.Action)
		if err != nil {
			return render.Outcome{}, err
		}
		raw := t.Data["service-id"]
		if raw == "" {
			return render.Outcome{}, fmt.Errorf("%s: missing service id", t.Action)
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			return render.Outcome{}, fmt.Errorf("%s: invalid service id %q", t.Action, raw)
		}
		if err := svc.ManageService(ctx, id, action); err != nil {
			return render.Outcome{}, err
		}
		return render.Outcome{
			Notice:     fmt.Sprintf("Service %d %s", id, serviceVerbs[action]),
			Invalidate: ServiceModules,
		}, nil
	}
}

func navigateTo(id string) render.Handler {
	return func(context.Context, render.Trigger) (render.Outcome, error) {
		return render.Outcome{Navigate: id}, nil
	}
}

func notice(text string) render.Handler {
	return func(context.Context, render.Trigger) (render.Outcome, error) {
		return render.Outcome{Notice: text}, nil
	}
}
