package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/igor-kupczynski/foodbuddy/internal/config"
	"github.com/igor-kupczynski/foodbuddy/internal/logger"
	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/services"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "foodbuddy",
	Short:         "Food logging service: photo sync, meal catalog, AI descriptions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// A .env file is optional and only used for local development.
	_ = godotenv.Load()

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(retryCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(diagCmd())
	rootCmd.AddCommand(typesCmd())
	rootCmd.AddCommand(apikeyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads config, wires the application, runs f, and tears down.
func withApp(f func(ctx context.Context, a *app) error) error {
	log := logger.NewConsole("foodbuddy")

	cfg, err := config.New()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return f(ctx, a)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background sync and analysis loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()

				hc := store.NewHealthChecker(a.store, a.log, 2*time.Second)
				go hc.Start(ctx, time.Minute)

				if err := a.sched.Start(ctx); err != nil {
					return err
				}

				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				<-quit

				a.log.Info().Msg("shutting down")
				cancel()
				return a.sched.Stop()
			})
		},
	}
}

func ingestCmd() *cobra.Command {
	var (
		typeFlag    string
		notesFlag   string
		analyzeFlag bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <image.jpg> [more images...]",
		Short: "Log a meal from photo files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				now := time.Now()

				var typeID uuid.UUID
				if typeFlag != "" {
					t, err := resolveMealType(ctx, a, typeFlag)
					if err != nil {
						return err
					}
					typeID = t.ID
				} else {
					t, err := a.mealTypes.SuggestForTime(ctx, now)
					if err != nil {
						return err
					}
					if t == nil {
						return fmt.Errorf("meal type catalog is empty")
					}
					typeID = t.ID
					fmt.Printf("using suggested meal type %q\n", t.DisplayName)
				}

				images := make([][]byte, 0, len(args))
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					images = append(images, data)
				}

				entries, err := a.entries.Ingest(ctx, services.IngestRequest{
					Images:          images,
					MealTypeID:      typeID,
					LoggedAt:        now,
					Notes:           notesFlag,
					RequestAnalysis: analyzeFlag,
				})
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("%s  %s\n", e.ID, e.ImageFilename)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&typeFlag, "type", "t", "", "Meal type name or ID (default: suggested from time of day)")
	cmd.Flags().StringVarP(&notesFlag, "notes", "n", "", "User notes for the meal")
	cmd.Flags().BoolVar(&analyzeFlag, "analyze", false, "Queue the meal for AI description")
	return cmd
}

// resolveMealType accepts either a type ID or a display name.
func resolveMealType(ctx context.Context, a *app, ref string) (*model.MealType, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return a.mealTypes.Get(ctx, id)
	}
	types, err := a.mealTypes.List(ctx)
	if err != nil {
		return nil, err
	}
	want := model.NormalizeMealTypeName(ref)
	for _, t := range types {
		if model.NormalizeMealTypeName(t.DisplayName) == want {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown meal type: %s", ref)
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one photo sync cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.engine.RunSyncCycle(ctx); err != nil {
					return err
				}
				return printDiagnostics(ctx, a)
			})
		},
	}
}

func retryCmd() *cobra.Command {
	var entryFlag string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry failed photo uploads now, ignoring their backoff timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if entryFlag != "" {
					entryID, err := uuid.Parse(entryFlag)
					if err != nil {
						return fmt.Errorf("invalid --entry id: %w", err)
					}
					if err := a.engine.RetryAsset(ctx, entryID); err != nil {
						return err
					}
					return printDiagnostics(ctx, a)
				}

				n, err := a.engine.RetryFailedNow(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("reset %d failed asset(s)\n", n)
				return printDiagnostics(ctx, a)
			})
		},
	}
	cmd.Flags().StringVarP(&entryFlag, "entry", "e", "", "Retry only the asset of this entry ID")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var requeueFlag string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Process meals queued for AI description",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if requeueFlag != "" {
					mealID, err := uuid.Parse(requeueFlag)
					if err != nil {
						return fmt.Errorf("invalid --requeue id: %w", err)
					}
					if err := a.models.Requeue(ctx, mealID); err != nil {
						return err
					}
				}
				return a.analysis.ProcessPendingMeals(ctx)
			})
		},
	}
	cmd.Flags().StringVarP(&requeueFlag, "requeue", "r", "", "Re-queue this failed meal ID before processing")
	return cmd
}

func diagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diag",
		Short: "Show photo sync diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := printDiagnostics(ctx, a); err != nil {
					return err
				}

				failures, err := a.engine.RecentFailures(ctx, 20)
				if err != nil {
					return err
				}
				if len(failures) == 0 {
					return nil
				}
				fmt.Println("\nrecent failures:")
				for _, f := range failures {
					line := fmt.Sprintf("  %s retries=%d", f.EntryID, f.RetryCount)
					if f.NextRetryAt != nil {
						line += " next=" + f.NextRetryAt.Format(time.RFC3339)
					}
					if f.LastError != nil {
						line += " error=" + *f.LastError
					}
					fmt.Println(line)
				}
				return nil
			})
		},
	}
}

func typesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Manage the meal type catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List meal types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				types, err := a.mealTypes.List(ctx)
				if err != nil {
					return err
				}
				for _, t := range types {
					kind := "custom"
					if t.IsSystem {
						kind = "system"
					}
					fmt.Printf("%s  %-20s %s\n", t.ID, t.DisplayName, kind)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Add a custom meal type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				t, err := a.mealTypes.CreateCustomType(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s\n", t.ID, t.DisplayName)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a meal type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid type id: %w", err)
				}
				return a.mealTypes.Rename(ctx, id, args[1])
			})
		},
	})

	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the AI description API credential",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <value>",
		Short: "Store the API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.keys.Set(args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.keys.Set("")
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether an API key is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				key, err := a.keys.Get()
				if err != nil {
					return err
				}
				if key == "" {
					fmt.Println("no api key configured")
				} else {
					fmt.Println("api key configured")
				}
				return nil
			})
		},
	})

	return cmd
}

func printDiagnostics(ctx context.Context, a *app) error {
	d, err := a.engine.Summarize(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pending=%d uploaded=%d failed=%d (waiting for retry: %d) deleted=%d\n",
		d.Pending, d.Uploaded, d.Failed, d.WaitingForRetry, d.Deleted)
	return nil
}
