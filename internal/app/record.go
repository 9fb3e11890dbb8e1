package app

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/blackwell-systems/distplan/internal/config"
	"github.com/blackwell-systems/distplan/internal/planner"
	"github.com/blackwell-systems/distplan/internal/store"
)

// openStore opens the history database and creates its schema.
func openStore(cfg *config.Config) (*store.Store, error) {
	path, err := getDBPath(cfg.DB)
	if err != nil {
		return nil, err
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return st, nil
}

// recordOutcome stores the result of a planning run and returns its ID.
func (r *planRun) recordOutcome(plan *planner.Plan, planErr error) (int64, error) {
	st, err := openStore(r.cfg)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	rec := toRecord(plan, planErr, time.Now())
	if err := st.InsertPlan(rec); err != nil {
		return 0, fmt.Errorf("failed to record plan: %w", err)
	}
	return rec.ID, nil
}

// toRecord converts a planning outcome into its history record. Failed
// runs keep the message and whatever payload the error carries.
func toRecord(plan *planner.Plan, planErr error, now time.Time) *store.Plan {
	rec := &store.Plan{
		CreatedAt: now,
		Outcome:   planner.ExitKind(planErr),
	}

	if planErr != nil {
		rec.Message = planErr.Error()

		var untrusted *planner.UntrustedPackagesError
		var short *planner.InsufficientSpaceError
		var resolution *planner.ResolutionFailedError
		switch {
		case errors.As(planErr, &untrusted):
			rec.Notes = appendNotes(rec.Notes, store.NoteUntrusted, untrusted.Packages)
		case errors.As(planErr, &short):
			for _, d := range short.Deficits {
				rec.Space = append(rec.Space, store.Space{
					MountPoint:    d.MountPoint,
					RequiredBytes: d.Required,
					ShortBy:       d.ShortBy,
				})
			}
		case errors.As(planErr, &resolution):
			if resolution.Report != "" {
				rec.Message += "\n" + resolution.Report
			}
		}
		return rec
	}

	rec.ServerMode = plan.ServerMode
	rec.MetaPackage = plan.MetaPackage
	rec.DownloadBytes = plan.RequiredDownloadBytes
	rec.InstalledDelta = plan.InstalledDelta

	for _, ch := range plan.Changes {
		rec.Changes = append(rec.Changes, store.Change{
			Package:       ch.Name,
			Mark:          ch.Mark.String(),
			Auto:          ch.Auto,
			FromVersion:   ch.From,
			ToVersion:     ch.To,
			DownloadBytes: ch.DownloadSize,
		})
	}

	points := make([]string, 0, len(plan.PerMountRequiredBytes))
	for mp := range plan.PerMountRequiredBytes {
		points = append(points, mp)
	}
	sort.Strings(points)
	for _, mp := range points {
		rec.Space = append(rec.Space, store.Space{
			MountPoint:    mp,
			RequiredBytes: plan.PerMountRequiredBytes[mp],
		})
	}

	rec.Notes = appendNotes(rec.Notes, store.NoteUntrusted, plan.UntrustedPackages)
	rec.Notes = appendNotes(rec.Notes, store.NoteDemoted, plan.DemotedInstalledPackages)
	rec.Notes = appendNotes(rec.Notes, store.NoteForeign, plan.ForeignPackages)
	rec.Notes = appendNotes(rec.Notes, store.NoteReqReinst, plan.ReqReinstPackages)
	rec.Notes = appendNotes(rec.Notes, store.NoteWarning, plan.Warnings)
	return rec
}

func appendNotes(notes []store.Note, kind string, values []string) []store.Note {
	for _, v := range values {
		notes = append(notes, store.Note{Kind: kind, Value: v})
	}
	return notes
}
