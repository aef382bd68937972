package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/winchance-agent/internal/apiclient"
	"github.com/park285/winchance-agent/internal/apiconfig"
	"github.com/park285/winchance-agent/internal/hostlink"
)

// hostcheck probes the host bridge and the collection API without starting
// the tracker. Only HOST_BASE_URL is required.
func main() {
	baseURL := strings.TrimSpace(os.Getenv("HOST_BASE_URL"))
	wsURL := strings.TrimSpace(os.Getenv("HOST_WS_URL"))
	token := strings.TrimSpace(os.Getenv("HOST_TOKEN"))
	apiURL := strings.TrimSpace(os.Getenv("API_URL"))

	if baseURL == "" {
		log.Fatal("HOST_BASE_URL is required")
	}

	headers := hostlink.BearerHeaders(token, "hostcheck")
	client := hostlink.NewClient(baseURL,
		hostlink.WithHeaderProvider(headers),
		hostlink.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		log.Printf("/config error: %v", err)
	} else {
		log.Printf("/config ok: version=%s realm=%s pid=%d overlay=%v", cfg.Version, cfg.Realm, cfg.ClientPID, cfg.OverlayReady)
	}

	if info, err := client.PlayerInfo(ctx); err != nil {
		log.Printf("/player error: %v", err)
	} else if info == nil {
		log.Println("/player: not logged in")
	} else {
		log.Printf("/player ok: account=%d name=%s realm=%s", info.AccountID, info.Nickname, info.Realm)
	}

	if apiURL != "" {
		store := apiconfig.Open(os.DevNull, apiconfig.Config{APIURL: apiURL, Enabled: true}, nil)
		api := apiclient.New(apiURL, store)
		log.Printf("%s/api/health reachable=%v", strings.TrimRight(apiURL, "/"), api.TestConnection(ctx))
	}

	if wsURL == "" {
		log.Println("HOST_WS_URL not set; skipping WS check")
		return
	}

	ws := hostlink.NewWebSocket(wsURL, 5, time.Second, nil)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state hostlink.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnEvent(func(ev *hostlink.Event) {
		switch ev.Type {
		case hostlink.EventInput:
			return
		case hostlink.EventBattleResults:
			fmt.Printf("WS event type=%s player=%v bytes=%d\n", ev.Type, ev.IsPlayerVehicle, len(ev.Result))
		default:
			fmt.Printf("WS event type=%s zone=%d\n", ev.Type, ev.Zone)
		}
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Close(context.Background())
}
