package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/selfrecall/selfrecall/internal/announce"
	"github.com/selfrecall/selfrecall/internal/config"
	"github.com/selfrecall/selfrecall/internal/shared/stringutils"
)

var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Manage scheduled announcements",
	Long: `Announcements are messages the gateway posts on a schedule. They are
recalled like any other bot message, optionally after their own delay.`,
}

func init() {
	announceCmd.AddCommand(announceListCmd)
	announceCmd.AddCommand(announceAddCmd)
	announceCmd.AddCommand(announceRemoveCmd)
	announceCmd.AddCommand(announceEnableCmd)
	announceCmd.AddCommand(announceRunCmd)
}

func announceService() (*announce.Service, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return announce.NewService(cfg.AnnouncePath()), cfg, nil
}

// ---- list ------------------------------------------------------------------

var announceListAll bool

var announceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List announcements",
	RunE: func(_ *cobra.Command, _ []string) error {
		svc, _, err := announceService()
		if err != nil {
			return err
		}
		jobs := svc.List(announceListAll)
		if len(jobs) == 0 {
			fmt.Println("No announcements.")
			return nil
		}
		fmt.Printf("%-10s %-16s %-24s %-22s %-9s %-16s\n", "ID", "Name", "Session", "Schedule", "Status", "Next Run")
		fmt.Println(strings.Repeat("-", 102))
		for _, j := range jobs {
			status := "enabled"
			if !j.Enabled {
				status = "disabled"
			}
			nextRun := ""
			if j.State.NextRunAtMs != nil {
				nextRun = time.UnixMilli(*j.State.NextRunAtMs).Format("2006-01-02 15:04")
			}
			fmt.Printf("%-10s %-16s %-24s %-22s %-9s %-16s\n",
				j.ID,
				stringutils.Truncate(j.Name, 13),
				stringutils.Truncate(j.Payload.Session, 21),
				stringutils.Truncate(formatSchedule(j.Schedule), 19),
				status, nextRun)
		}
		return nil
	},
}

func init() {
	announceListCmd.Flags().BoolVarP(&announceListAll, "all", "a", false, "Include disabled announcements")
}

// ---- add -------------------------------------------------------------------

var (
	announceAddName    string
	announceAddMsg     string
	announceAddSession string
	announceAddEvery   int
	announceAddCron    string
	announceAddTZ      string
	announceAddAt      string
	announceAddRecall  int
)

var announceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an announcement",
	RunE: func(_ *cobra.Command, _ []string) error {
		if announceAddTZ != "" && announceAddCron == "" {
			return fmt.Errorf("--tz can only be used with --cron")
		}
		req := announce.AddRequest{
			Name:        announceAddName,
			Session:     announceAddSession,
			Message:     announceAddMsg,
			RecallAfter: announceAddRecall,
		}
		switch {
		case announceAddEvery > 0:
			req.Kind = announce.KindEvery
			req.Every = time.Duration(announceAddEvery) * time.Second
		case announceAddCron != "":
			req.Kind = announce.KindCron
			req.Expr = announceAddCron
			req.TZ = announceAddTZ
		case announceAddAt != "":
			at, err := time.ParseInLocation("2006-01-02T15:04:05", announceAddAt, time.Local)
			if err != nil {
				if at, err = time.Parse(time.RFC3339, announceAddAt); err != nil {
					return fmt.Errorf("invalid --at value %q: %w", announceAddAt, err)
				}
			}
			req.Kind = announce.KindAt
			req.At = at
			req.DeleteAfterRun = true
		default:
			return fmt.Errorf("must specify --every, --cron, or --at")
		}

		svc, _, err := announceService()
		if err != nil {
			return err
		}
		job, err := svc.Add(req)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added announcement '%s' (%s)\n", job.Name, job.ID)
		fmt.Println("  A running gateway picks it up on its next heartbeat.")
		return nil
	},
}

func init() {
	announceAddCmd.Flags().StringVarP(&announceAddName, "name", "n", "", "Announcement name")
	announceAddCmd.Flags().StringVarP(&announceAddMsg, "message", "m", "", "Message text (required)")
	announceAddCmd.Flags().StringVarP(&announceAddSession, "session", "s", "", "Target session, as platform:type:chatId (required)")
	announceAddCmd.Flags().IntVarP(&announceAddEvery, "every", "e", 0, "Post every N seconds")
	announceAddCmd.Flags().StringVar(&announceAddCron, "cron", "", "Cron expression (e.g. '0 9 * * *')")
	announceAddCmd.Flags().StringVar(&announceAddTZ, "tz", "", "IANA timezone for --cron")
	announceAddCmd.Flags().StringVar(&announceAddAt, "at", "", "Post once at ISO datetime")
	announceAddCmd.Flags().IntVarP(&announceAddRecall, "recall-after", "r", 0, "Recall delay in seconds (default: the session's delay)")

	_ = announceAddCmd.MarkFlagRequired("message")
	_ = announceAddCmd.MarkFlagRequired("session")
}

// ---- remove / enable -------------------------------------------------------

var announceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an announcement",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc, _, err := announceService()
		if err != nil {
			return err
		}
		if svc.Remove(args[0]) {
			fmt.Printf("✓ Removed announcement %s\n", args[0])
		} else {
			fmt.Printf("Announcement %s not found\n", args[0])
		}
		return nil
	},
}

var announceDisable bool

var announceEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable (or disable) an announcement",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc, _, err := announceService()
		if err != nil {
			return err
		}
		job, ok := svc.Enable(args[0], !announceDisable)
		if !ok {
			fmt.Printf("Announcement %s not found\n", args[0])
			return nil
		}
		action := "enabled"
		if announceDisable {
			action = "disabled"
		}
		fmt.Printf("✓ Announcement '%s' %s\n", job.Name, action)
		return nil
	},
}

func init() {
	announceEnableCmd.Flags().BoolVar(&announceDisable, "disable", false, "Disable instead of enable")
}

// ---- run -------------------------------------------------------------------

// run goes through the gateway API: only the gateway holds live channel
// connections and the timers that recall the posted message.
var announceRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Post an announcement now through the running gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := announceService()
		if err != nil {
			return err
		}
		var resp map[string]any
		if err := callGateway(cmd.Context(), cfg, http.MethodPost, "/api/announce/"+args[0]+"/run", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("✓ Announcement %s posted\n", args[0])
		return nil
	},
}

// ---- helpers ---------------------------------------------------------------

func formatSchedule(s announce.Schedule) string {
	switch s.Kind {
	case announce.KindEvery:
		if s.EveryMs != nil {
			return "every " + (time.Duration(*s.EveryMs) * time.Millisecond).String()
		}
	case announce.KindCron:
		if s.Expr != nil {
			if s.TZ != nil {
				return *s.Expr + " (" + *s.TZ + ")"
			}
			return *s.Expr
		}
	case announce.KindAt:
		if s.AtMs != nil {
			return "at " + time.UnixMilli(*s.AtMs).Format("01-02 15:04")
		}
	}
	return s.Kind
}

// callGateway sends one JSON request to the local gateway API.
func callGateway(ctx context.Context, cfg *config.Config, method, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return err
		}
	}
	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Gateway.Port)) + path

	req, err := http.NewRequestWithContext(ctx, method, url, &payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Gateway.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Gateway.APIToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("gateway: %s: %s", resp.Status, e.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
