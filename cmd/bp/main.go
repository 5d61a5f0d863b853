package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"buildpass/internal/config"
	"buildpass/internal/db"
	"buildpass/internal/domain"
	"buildpass/internal/engine"
	"buildpass/internal/insight"
	"buildpass/internal/migrate"
	"buildpass/internal/repo"
	"buildpass/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bp",
	Short: "Build & Pass CLI",
	Long: `Build & Pass runs relay-style collaborative projects.
An originator starts a chain with an idea; each contributor builds one link of
work, gets evaluated, and passes the project on when the next phase needs
skills they don't have. Handoffs go to the best matched human or idle agent,
skills grow with every observed contribution, and finished chains split the
credit among everyone who touched them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BUILDPASS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("kind", "human", "contributor kind (human|agent)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("kind", rootCmd.PersistentFlags().Lookup("kind"))
}

func registerCommands() {
	rootCmd.AddCommand(chainCmd())
	rootCmd.AddCommand(handoffCmd())
	rootCmd.AddCommand(skillsCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func chainCmd() *cobra.Command {
	chain := &cobra.Command{Use: "chain", Short: "Manage build chains"}
	chain.AddCommand(chainStartCmd())
	chain.AddCommand(chainListCmd())
	chain.AddCommand(chainShowCmd())
	chain.AddCommand(chainSubmitCmd())
	chain.AddCommand(chainCompleteCmd())
	chain.AddCommand(chainAbandonCmd())
	chain.AddCommand(chainCreditsCmd())
	return chain
}

func chainStartCmd() *cobra.Command {
	var title, desc, projectType, idea string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a chain from an idea",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInsightEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.StartChain(ctx, engine.StartChainOptions{
					OriginatorID: viper.GetString("actor-id"),
					Title:        title,
					Description:  desc,
					ProjectType:  projectType,
					Idea:         idea,
				})
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "chain title")
	cmd.Flags().StringVar(&desc, "description", "", "chain description")
	cmd.Flags().StringVar(&projectType, "type", "software", "project type")
	cmd.Flags().StringVar(&idea, "idea", "", "the initial project idea")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("idea")
	return cmd
}

func chainListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListChains(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "TITLE", "STATUS", "OWNER", "CONTRIBUTORS", "COMPLETION"})
				for _, c := range items {
					owner := ""
					if c.CurrentOwnerID != nil {
						owner = *c.CurrentOwnerID
					}
					t.AppendRow(table.Row{c.ID, c.Title, c.Status, owner, c.TotalContributors, fmt.Sprintf("%d%%", c.CompletionPercentage)})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func chainShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <chain-id>",
		Short: "Chain with full link history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				h, err := e.GetChainHistory(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(h)
			})
		},
	}
	return cmd
}

func chainSubmitCmd() *cobra.Command {
	var description string
	var output string
	var timeSpent int
	cmd := &cobra.Command{
		Use:   "submit <chain-id>",
		Short: "Submit finished work on the active link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInsightEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SubmitContribution(ctx, engine.SubmitOptions{
					ChainID:         args[0],
					ContributorID:   viper.GetString("actor-id"),
					Kind:            contributorKind(),
					WorkDescription: description,
					WorkOutput:      output,
					TimeSpent:       timeSpent,
				})
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "what the work covered")
	cmd.Flags().StringVar(&output, "output", "", "the work output")
	cmd.Flags().IntVar(&timeSpent, "time-spent", 0, "minutes spent")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func chainCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <chain-id>",
		Short: "Mark a chain completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CompleteChain(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	return cmd
}

func chainAbandonCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abandon <chain-id>",
		Short: "Abandon a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AbandonChain(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the chain is abandoned")
	return cmd
}

func chainCreditsCmd() *cobra.Command {
	var calculate bool
	cmd := &cobra.Command{
		Use:   "credits <chain-id>",
		Short: "Show (or calculate) a chain's credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if calculate {
					credits, err := e.CalculateCredits(ctx, args[0], viper.GetString("actor-id"))
					if err != nil {
						return err
					}
					return printJSON(credits)
				}
				credits, err := e.Credits(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(credits)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"CONTRIBUTOR", "KIND", "CREDIT", "VALUE", "BADGES"})
				for _, c := range credits {
					t.AppendRow(table.Row{c.ContributorID, c.ContributorKind, fmt.Sprintf("%d%%", c.CreditPercentage), c.ContributionValue, strings.Join(c.Badges, ",")})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&calculate, "calculate", false, "calculate credits for a completed chain")
	return cmd
}

func handoffCmd() *cobra.Command {
	handoff := &cobra.Command{Use: "handoff", Short: "Manage handoffs"}
	handoff.AddCommand(&cobra.Command{
		Use:   "list <chain-id>",
		Short: "Open handoff requests for a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListOpenHandoffs(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})
	handoff.AddCommand(&cobra.Command{
		Use:   "accept <chain-id>",
		Short: "Accept the chain's pending handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.AcceptHandoff(ctx, args[0], contributorKind(), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	})
	handoff.AddCommand(&cobra.Command{
		Use:   "reject <chain-id>",
		Short: "Decline the chain's pending handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				h, err := e.RejectHandoff(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(h)
			})
		},
	})
	return handoff
}

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills [contributor-id]",
		Short: "Skill assessments for a contributor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contributor := viper.GetString("actor-id")
			if len(args) == 1 {
				contributor = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Profile(ctx, contributor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"CATEGORY", "PROFICIENCY", "CONFIDENCE", "METHOD", "LAST ASSESSED"})
				for _, a := range items {
					t.AppendRow(table.Row{a.SkillCategory, a.ProficiencyLevel, a.ConfidenceScore, a.AssessmentMethod, a.LastAssessedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	return cmd
}

func profileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Matcher profile"}
	var name string
	var tags []string
	var cognitive, technical int
	set := &cobra.Command{
		Use:   "set",
		Short: "Register or refresh the caller's matcher profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpsertHumanProfile(ctx, domain.HumanProfile{
					ContributorID:  viper.GetString("actor-id"),
					DisplayName:    name,
					SkillTags:      tags,
					CognitiveScore: cognitive,
					TechnicalScore: technical,
				})
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	set.Flags().StringVar(&name, "display-name", "", "display name")
	set.Flags().StringSliceVar(&tags, "tags", nil, "skill tags")
	set.Flags().IntVar(&cognitive, "cognitive", 50, "cognitive score 0-100")
	set.Flags().IntVar(&technical, "technical", 50, "technical score 0-100")
	_ = set.MarkFlagRequired("display-name")
	profile.AddCommand(set)
	return profile
}

func agentCmd() *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Manage agents"}
	var name string
	var caps []string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register an automated contributor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterAgent(ctx, engine.RegisterAgentOptions{Name: name, Capabilities: caps})
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	register.Flags().StringVar(&name, "name", "", "agent name")
	register.Flags().StringSliceVar(&caps, "capabilities", nil, "capability tags")
	_ = register.MarkFlagRequired("name")
	agent.AddCommand(register)

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAgents(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "NAME", "STATUS", "CAPABILITIES", "TASKS DONE"})
				for _, a := range items {
					t.AppendRow(table.Row{a.ID, a.Name, a.Status, strings.Join(a.Capabilities, ","), a.TasksCompleted})
				}
				t.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")
	agent.AddCommand(list)
	return agent
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if actor == "" {
					actor = viper.GetString("actor-id")
				}
				rawKey := uuid.NewString() + uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(rawKey),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSON(map[string]string{"id": key.ID, "actor_id": actor, "key": rawKey})
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	create.Flags().StringVar(&name, "name", "", "key label")
	apikey.AddCommand(create)

	apikey.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})
	apikey.AddCommand(&cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return apikey
}

func webhookCmd() *cobra.Command {
	webhook := &cobra.Command{Use: "webhook", Short: "Manage event webhooks"}
	var url, secret string
	var eventTypes []string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a webhook delivery target",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				w := repo.Webhook{
					ID:         uuid.NewString(),
					URL:        url,
					EventTypes: eventTypes,
					Secret:     secret,
					Active:     true,
					CreatedAt:  time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertWebhook(ctx, w); err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	add.Flags().StringVar(&url, "url", "", "delivery URL")
	add.Flags().StringSliceVar(&eventTypes, "events", nil, "event types to deliver (all when empty)")
	add.Flags().StringVar(&secret, "secret", "", "shared secret header")
	_ = add.MarkFlagRequired("url")
	webhook.AddCommand(add)

	webhook.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWebhooks(ctx, false)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})
	return webhook
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	var projectID string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default buildpass.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&projectID, "project-id", "default", "project identifier")
	cfg.AddCommand(initCmd)

	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate buildpass.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	})
	return cfg
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.RecentEvents(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				for _, e := range items {
					fmt.Printf("%s %-24s chain=%s actor=%s %s\n", e.TS, e.Type, e.ChainID, e.ActorID, e.Payload)
				}
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 50, "number of events")
	logRoot.AddCommand(tail)
	return logRoot
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			svc, err := insight.NewClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg, svc)
			if addr == "" {
				addr = cfg.Server.Addr
			}
			secret := os.Getenv(cfg.Server.JWTSecretEnv)
			if secret == "" && !allowLegacyActor {
				return fmt.Errorf("%s is required for bearer auth", cfg.Server.JWTSecretEnv)
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, AllowLegacyActorHeader: allowLegacyActor},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Build & Pass API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor", false, "accept X-Actor-Id without auth (dev only)")
	return cmd
}

func contributorKind() domain.ContributorKind {
	if viper.GetString("kind") == string(domain.KindAgent) {
		return domain.KindAgent
	}
	return domain.KindHuman
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return openEngine(ctx, nil, fn)
}

// withInsightEngine wires the real evaluation client; it fails fast when the
// insight API key is not configured.
func withInsightEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	build := func(cfg *config.Config) (insight.Service, error) {
		return insight.NewClient(ctx, cfg)
	}
	return openEngine(ctx, build, fn)
}

func openEngine(ctx context.Context, buildInsight func(*config.Config) (insight.Service, error), fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	var svc insight.Service
	if buildInsight != nil {
		svc, err = buildInsight(cfg)
		if err != nil {
			return err
		}
	}
	e := engine.New(conn, cfg, svc)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
