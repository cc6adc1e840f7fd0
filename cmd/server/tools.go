package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/config"
	"github.com/felman/modulos_backend/internal/database"
	"github.com/felman/modulos_backend/internal/middleware"
	"github.com/felman/modulos_backend/internal/probe"
	"github.com/felman/modulos_backend/internal/render"
	"github.com/felman/modulos_backend/internal/repository"
	"github.com/felman/modulos_backend/internal/routes"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and apply the one-time legacy module fix.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := bootstrap()
			if err != nil {
				return err
			}
			defer e.close()
			svc := routes.NewServices(e.db, e.cfg, e.log)
			defer svc.Viewers.Close()
			return database.FixLegacyModules(cmd.Context(), e.db, svc.Repo, e.log)
		},
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a module list exported from a device.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			defs, err := repository.DecodeLegacyList(raw)
			if err != nil {
				return err
			}
			e, err := bootstrap()
			if err != nil {
				return err
			}
			defer e.close()
			svc := routes.NewServices(e.db, e.cfg, e.log)
			defer svc.Viewers.Close()

			res, err := repository.Import(cmd.Context(), svc.Repo, defs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, repaired %d, failed %d\n", res.Imported, res.Repaired, len(res.Failed))
			for _, f := range res.Failed {
				color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "  #%d %s: %s\n", f.Index, f.Name, f.Error)
			}
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	var out string
	command := &cobra.Command{
		Use:   "export",
		Short: "Export every module in the device storage format.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := bootstrap()
			if err != nil {
				return err
			}
			defer e.close()
			svc := routes.NewServices(e.db, e.cfg, e.log)
			defer svc.Viewers.Close()

			defs, _, err := svc.Repo.List(cmd.Context(), repository.ListOptions{SortBy: "created_at", SortDir: "ASC"})
			if err != nil {
				return err
			}
			b, err := repository.EncodeLegacyList(defs)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(b, '\n'))
				return err
			}
			return os.WriteFile(out, b, 0o600)
		},
	}
	command.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return command
}

func newRenderCommand() *cobra.Command {
	var page int
	command := &cobra.Command{
		Use:   "render <module-id>",
		Short: "Fetch a module's data and print it as cards.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := bootstrap()
			if err != nil {
				return err
			}
			defer e.close()
			svc := routes.NewServices(e.db, e.cfg, e.log)
			defer svc.Viewers.Close()

			ctx := cmd.Context()
			def, err := svc.Repo.Get(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := svc.Pipeline.Run(ctx, def)
			if err != nil {
				return err
			}
			for _, d := range out.Diagnostics {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "%s: %s\n", d.Code, d.Message)
			}
			cards, info := render.Page(out.Cards, page, def.PerPage())
			color.New(color.Bold).Fprintf(cmd.OutOrStdout(), "%s (page %d/%d, %d records)\n\n", def.Name, info.Page, info.TotalPages, info.Total)
			return render.WriteText(cmd.OutOrStdout(), cards)
		},
	}
	command.Flags().IntVarP(&page, "page", "p", 1, "page of cards to print")
	return command
}

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that every module endpoint answers.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := bootstrap()
			if err != nil {
				return err
			}
			defer e.close()
			svc := routes.NewServices(e.db, e.cfg, e.log)
			defer svc.Viewers.Close()

			defs, _, err := svc.Repo.List(cmd.Context(), repository.ListOptions{SortBy: "nombre", SortDir: "ASC"})
			if err != nil {
				return err
			}
			targets := make([]probe.Target, 0, len(defs))
			names := map[string]string{}
			for _, d := range defs {
				targets = append(targets, probe.Target{Key: d.ID, URL: d.APIRestURL})
				names[d.ID] = d.Name
			}

			ok, bad := color.New(color.FgGreen), color.New(color.FgRed)
			failed := 0
			for _, r := range svc.Prober.ProbeAll(cmd.Context(), targets) {
				if r.Reachable {
					ok.Fprintf(cmd.OutOrStdout(), "  up    %-30s %d %s\n", names[r.Key], r.Status, r.Latency.Round(time.Millisecond))
					continue
				}
				failed++
				bad.Fprintf(cmd.OutOrStdout(), "  down  %-30s %s\n", names[r.Key], r.Error)
			}
			if failed > 0 {
				e.log.Warn("unreachable module endpoints", zap.Int("count", failed))
				return errors.Errorf("%d of %d endpoints unreachable", failed, len(targets))
			}
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	var userID, role string
	var ttl time.Duration
	command := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local testing.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			tok, err := middleware.SignToken(cfg.JWTSecret, userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	command.Flags().StringVar(&userID, "user", "dev", "user_id claim")
	command.Flags().StringVar(&role, "role", "Admin", "role claim")
	command.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return command
}
