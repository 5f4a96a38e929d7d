package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/yurykabanov/sweeper/pkg/domain"
	"github.com/yurykabanov/sweeper/pkg/storage"
)

var importCmd = &cobra.Command{
	Use:   "import <manifest.json|->",
	Short: "Record deployed commits and aliases in the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()

		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			in = f
		}

		var catalog *storage.CatalogRepository

		modules := fx.Options(
			baseModules(cmd),
			fx.Populate(&catalog),
		)

		return runOnce(cmd.Context(), modules, func(ctx context.Context) error {
			commits, aliases, err := importManifest(ctx, catalog, in)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d commit(s), %d alias(es)\n", commits, aliases)
			return err
		})
	},
}

type manifest struct {
	Commits []domain.Commit `json:"commits"`
	Aliases []domain.Alias  `json:"aliases"`
}

type catalogWriter interface {
	SaveCommit(ctx context.Context, c domain.Commit) error
	SetAlias(ctx context.Context, a domain.Alias) error
}

// importManifest stores every commit before any alias so aliases may point
// to commits of the same manifest.
func importManifest(ctx context.Context, catalog catalogWriter, r io.Reader) (int, int, error) {
	var m manifest

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&m); err != nil {
		return 0, 0, errors.Wrap(err, "invalid manifest")
	}

	for i, c := range m.Commits {
		if c.ProjectId == "" || c.Sha == "" || c.Branch == "" {
			return i, 0, errors.Errorf("commit #%d: projectId, sha and branch are required", i+1)
		}
		if c.DeployedAt.IsZero() {
			return i, 0, errors.Errorf("commit %s: deployedAt is required", c.Sha)
		}

		if err := catalog.SaveCommit(ctx, c); err != nil {
			return i, 0, errors.Wrapf(err, "commit %s", c.Sha)
		}
	}

	for i, a := range m.Aliases {
		if a.ProjectId == "" || a.Name == "" || a.CommitSha == "" {
			return len(m.Commits), i, errors.Errorf("alias #%d: projectId, name and commitSha are required", i+1)
		}

		if err := catalog.SetAlias(ctx, a); err != nil {
			return len(m.Commits), i, errors.Wrapf(err, "alias %s", a.Name)
		}
	}

	return len(m.Commits), len(m.Aliases), nil
}
